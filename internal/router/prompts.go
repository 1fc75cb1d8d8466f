package router

import (
	"fmt"
	"strings"
	"time"
)

// Prompt templates per capability, Thai-first to match the deployment
// audience. Placeholders are substituted in renderPrompt; capabilities
// without a template use defaultTemplate.
var promptTemplates = map[Capability]string{
	CapConversation: `คุณเป็นผู้ช่วยอัจฉริยะของระบบตอบแชทลูกค้า

ข้อมูลผู้ใช้:
- ชื่อ: {user_name}
- เวลา: {current_time}

ข้อความจากผู้ใช้: "{user_message}"

กรุณาตอบกลับอย่างสุภาพเป็นภาษาไทย โดย:
1. ให้ข้อมูลที่ถูกต้องและเป็นประโยชน์
2. ตอบแบบกระชับและเข้าใจง่าย
3. หากไม่ทราบคำตอบ ให้แนะนำให้ติดต่อเจ้าหน้าที่
4. ใช้น้ำเสียงเป็นมิตรและเป็นทางการเล็กน้อย
{additional_context}`,

	CapImageAnalysis: `กรุณาวิเคราะห์รูปภาพนี้อย่างละเอียดเป็นภาษาไทย สำหรับผู้ใช้ชื่อ {user_name}

โปรดอธิบาย:
1. สิ่งที่เห็นในภาพโดยทั่วไป
2. รายละเอียดที่สำคัญ (สี, วัตถุ, คน, สถานที่)
3. บริบทหรือเหตุการณ์ที่เกิดขึ้น
4. ข้อมูลที่เป็นประโยชน์หรือข้อสังเกต

หากเป็นเอกสาร ป้าย หรือข้อความในภาพ กรุณาอ่านและแปลความหมายด้วย
{additional_context}`,

	CapDocumentAnalysis: `กรุณาวิเคราะห์และสรุปเอกสารนี้เป็นภาษาไทย สำหรับผู้ใช้ชื่อ {user_name}

โปรดให้ข้อมูล:
1. ประเด็นหลักของเอกสาร
2. ข้อมูลสำคัญที่ควรทราบ
3. สรุปเนื้อหาแบบกระชับ
4. ข้อเสนอแนะหรือขั้นตอนต่อไป (ถ้ามี)

หากเป็นแบบฟอร์มหรือเอกสารราชการ กรุณาอธิบายวัตถุประสงค์และวิธีการดำเนินการ
{additional_context}`,

	CapLocationContext: `ผู้ใช้ชื่อ {user_name} ได้แชร์ตำแหน่งที่ตั้ง:

ข้อมูลสถานที่:
- ชื่อ: {location_title}
- ที่อยู่: {location_address}
- พิกัด: {latitude}, {longitude}

กรุณาให้ข้อมูลเป็นภาษาไทยเกี่ยวกับ:
1. บริบทของสถานที่นี้
2. บริการหรือข้อมูลที่เกี่ยวข้อง
3. คำแนะนำที่เป็นประโยชน์
4. ข้อมูลเพิ่มเติมที่ผู้ใช้ควรทราบ
{additional_context}`,

	CapEmotionResponse: `ผู้ใช้ชื่อ {user_name} ได้ส่งสติกเกอร์:
- Package ID: {package_id}
- Sticker ID: {sticker_id}

กรุณาตอบกลับอย่างเหมาะสมเป็นภาษาไทย โดยพิจารณา:
1. อารมณ์หรือความรู้สึกที่สติกเกอร์แสดงออก
2. การตอบสนองที่เหมาะสม
3. การเสนอความช่วยเหลือหากจำเป็น

ใช้น้ำเสียงที่อบอุ่นและเข้าใจอารมณ์ของผู้ใช้
{additional_context}`,

	CapQuestionAnswering: `ผู้ใช้ชื่อ {user_name} มีคำถาม: "{user_message}"

กรุณาตอบคำถามเป็นภาษาไทยอย่างครบถ้วน โดย:
1. ให้คำตอบที่ตรงประเด็น
2. อธิบายเพิ่มเติมหากจำเป็น
3. ให้ขั้นตอนการดำเนินการ (ถ้ามี)
4. แนะนำแหล่งข้อมูลเพิ่มเติม

หากไม่ทราบคำตอบที่แน่ชัด กรุณาแนะนำให้ติดต่อเจ้าหน้าที่ที่เกี่ยวข้อง
{additional_context}`,
}

const defaultTemplate = `กรุณาตอบกลับผู้ใช้ชื่อ {user_name} อย่างสุภาพเป็นภาษาไทย

ข้อความจากผู้ใช้: "{user_message}"
{additional_context}`

const contextHelp = "\nผู้ใช้ต้องการความช่วยเหลือเร่งด่วน กรุณาให้คำแนะนำที่ชัดเจนและเป็นประโยชน์"

const contextComplex = "\nคำถามมีความซับซ้อน กรุณาตอบอย่างละเอียดและครบถ้วน"

func renderPrompt(cap Capability, kind ContentKind, content Content, profile UserProfile, f features) string {
	template, ok := promptTemplates[cap]
	if !ok {
		template = defaultTemplate
	}

	name := profile.DisplayName
	if name == "" {
		name = "ผู้ใช้"
	}
	extra := ""
	if f.helpRequest {
		extra = contextHelp
	} else if f.complex {
		extra = contextComplex
	}
	text := content.Text
	if kind == KindPostback && text == "" {
		text = content.PostbackData
	}
	title, address := content.Title, content.Address
	if title == "" {
		title = "ไม่ระบุ"
	}
	if address == "" {
		address = "ไม่ระบุ"
	}

	return strings.NewReplacer(
		"{user_name}", name,
		"{current_time}", time.Now().Format("2006-01-02 15:04:05"),
		"{user_message}", text,
		"{location_title}", title,
		"{location_address}", address,
		"{latitude}", fmt.Sprintf("%g", content.Latitude),
		"{longitude}", fmt.Sprintf("%g", content.Longitude),
		"{package_id}", content.PackageID,
		"{sticker_id}", content.StickerID,
		"{additional_context}", extra,
	).Replace(template)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func hasSuffixFold(s, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(suffix))
}
