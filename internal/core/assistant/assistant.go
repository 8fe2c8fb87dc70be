// Package assistant renders rule-based plant care replies in Vietnamese.
// It has no I/O and no state; callers supply the analysis context.
package assistant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

type Intent string

const (
	IntentDisease    Intent = "disease"
	IntentTreatment  Intent = "treatment"
	IntentCare       Intent = "care"
	IntentWeather    Intent = "weather"
	IntentFertilizer Intent = "fertilizer"
	IntentWatering   Intent = "watering"
	IntentDefault    Intent = "default"
)

type Reply struct {
	Intent Intent
	Text   string
}

type rule struct {
	intent   Intent
	keywords []string
}

// Order matters: the first matching rule wins.
var rules = []rule{
	{intent: IntentDisease, keywords: []string{"bệnh", "disease"}},
	{intent: IntentTreatment, keywords: []string{"điều trị", "treatment", "cách chữa"}},
	{intent: IntentCare, keywords: []string{"chăm sóc", "care", "nuôi trồng"}},
	{intent: IntentWeather, keywords: []string{"thời tiết", "weather"}},
	{intent: IntentFertilizer, keywords: []string{"phân bón", "fertilizer"}},
	{intent: IntentWatering, keywords: []string{"tưới nước", "watering"}},
}

const defaultPlantName = "cây trồng"

// Classify returns the intent of a free-text message.
func Classify(message string) Intent {
	lower := strings.ToLower(message)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.intent
			}
		}
	}
	return IntentDefault
}

// Respond classifies the message and renders the matching template.
// analysis may be nil.
func Respond(message string, analysis *domain.Analysis) Reply {
	intent := Classify(message)
	var text string
	switch intent {
	case IntentDisease:
		text = renderDisease(analysis)
	case IntentTreatment:
		text = renderTreatment(analysis)
	case IntentCare:
		text = fmt.Sprintf(careTemplate, plantName(analysis))
	case IntentWeather:
		text = renderWeather(analysis)
	case IntentFertilizer:
		text = fmt.Sprintf(fertilizerTemplate, plantName(analysis))
	case IntentWatering:
		text = fmt.Sprintf(wateringTemplate, plantName(analysis))
	default:
		text = fmt.Sprintf(defaultTemplate, plantName(analysis))
	}
	return Reply{Intent: intent, Text: text}
}

// SeverityLabel translates a severity tier.
func SeverityLabel(s domain.Severity) string {
	switch s {
	case domain.SeverityLow:
		return "Nhẹ"
	case domain.SeverityMedium:
		return "Trung bình"
	case domain.SeverityHigh:
		return "Nặng"
	case domain.SeverityCritical:
		return "Nghiêm trọng"
	default:
		return "Không xác định"
	}
}

// WeatherAdvice lists care adjustments for the given conditions, temperature first.
func WeatherAdvice(temperature, humidity float64) string {
	var lines []string
	switch {
	case temperature > 30:
		lines = append(lines, "🌡️ **Nhiệt độ cao:** Tưới nhiều hơn, che nắng")
	case temperature < 15:
		lines = append(lines, "❄️ **Nhiệt độ thấp:** Giảm tưới, bảo vệ khỏi lạnh")
	}
	switch {
	case humidity > 80:
		lines = append(lines, "💧 **Độ ẩm cao:** Giảm tưới, tăng thông gió")
	case humidity < 40:
		lines = append(lines, "🌵 **Độ ẩm thấp:** Tăng tưới, phun sương")
	}
	if len(lines) == 0 {
		return "🌤️ **Thời tiết thuận lợi:** Duy trì chế độ chăm sóc bình thường"
	}
	return strings.Join(lines, "\n")
}

func plantName(analysis *domain.Analysis) string {
	if analysis == nil || strings.TrimSpace(analysis.PlantName) == "" {
		return defaultPlantName
	}
	return analysis.PlantName
}

func hasDiseases(analysis *domain.Analysis) bool {
	return analysis != nil && len(analysis.Diseases) > 0
}

func renderDisease(analysis *domain.Analysis) string {
	if !hasDiseases(analysis) {
		return healthyDiseaseTemplate
	}

	var b strings.Builder
	b.WriteString("🔍 **Kết quả phân tích bệnh:**\n\n")
	for i, d := range analysis.Diseases {
		fmt.Fprintf(&b, "**%d. %s**\n", i+1, d.Name)
		fmt.Fprintf(&b, "- Độ tin cậy: %d%%\n", d.Confidence())
		fmt.Fprintf(&b, "- Mức độ nghiêm trọng: %s\n", SeverityLabel(d.Severity()))
		if d.Description != "" {
			fmt.Fprintf(&b, "- Mô tả: %s\n", d.Description)
		}
		if len(d.Symptoms) > 0 {
			fmt.Fprintf(&b, "- Triệu chứng: %s\n", strings.Join(d.Symptoms, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("💡 **Khuyến nghị:** Hãy tham khảo phần điều trị để biết cách chữa bệnh cụ thể.")
	return b.String()
}

func renderTreatment(analysis *domain.Analysis) string {
	if !hasDiseases(analysis) {
		return healthyTreatmentTemplate
	}

	var b strings.Builder
	b.WriteString("💊 **Hướng dẫn điều trị:**\n\n")
	for _, d := range analysis.Diseases {
		fmt.Fprintf(&b, "**%s** (%s)\n", d.Name, SeverityLabel(d.Severity()))
		if len(d.Treatments) > 0 {
			b.WriteString("**Cách điều trị:**\n")
			for i, t := range d.Treatments {
				fmt.Fprintf(&b, "%d. %s\n", i+1, t)
			}
		} else {
			b.WriteString("**Cách điều trị chung:**\n")
			b.WriteString(genericTreatmentSteps)
		}
		b.WriteString("\n")
	}
	b.WriteString("⚠️ **Lưu ý:** Luôn đọc kỹ hướng dẫn sử dụng thuốc và đeo đồ bảo hộ khi phun thuốc.")
	return b.String()
}

func renderWeather(analysis *domain.Analysis) string {
	if analysis == nil || analysis.Weather == nil {
		return noWeatherTemplate
	}
	w := analysis.Weather
	return fmt.Sprintf(weatherTemplate,
		w.Location,
		formatNumber(w.Temperature),
		formatNumber(w.Humidity),
		w.Description,
		WeatherAdvice(w.Temperature, w.Humidity),
	)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
