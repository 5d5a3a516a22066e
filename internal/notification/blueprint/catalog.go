package blueprint

import (
	"strings"
)

// DefaultResourceName はリソース名が省略された場合に使用するリソース名。
const DefaultResourceName = "promotion"

// Option は選択肢のラベルと値の組。
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// resourceCatalog はリソース名ごとのオートメーション名とプレースホルダ一覧。
type resourceCatalog struct {
	name         string
	automations  []string
	placeholders []string
}

var catalog = []resourceCatalog{
	{
		name:        "course",
		automations: []string{"new_course", "course_update", "course_announcement"},
		placeholders: []string{
			"course_name", "description", "price", "estimatedPrice", "level",
			"introductionVideoUrl", "ratings", "lectureCount", "examCount", "bookCount", "purchased",
		},
	},
	{
		name: "enrolled_course",
		automations: []string{
			"enrolled_course", "enrolled_course_update", "enrolled_course_announcement", "live_class_reminder",
		},
		placeholders: []string{
			"customer_name", "course_name", "introductionVideoUrl", "lectureCount", "examCount", "bookCount",
		},
	},
	{
		name:         "exam",
		automations:  []string{"new_exam", "schedule_exam", "exam_result"},
		placeholders: []string{"type", "openness", "name", "description", "duration", "totalMarks", "accessCode"},
	},
	{
		name:         "book",
		automations:  []string{"new_book"},
		placeholders: []string{"type", "marks", "question", "options", "correctAnswer", "explanation"},
	},
	{
		name:         "event",
		automations:  []string{"event_update", "event_reminder"},
		placeholders: []string{"user_name", "event_name", "start_time", "duration", "remaining_time", "event_type"},
	},
	{
		name:        "shipmint",
		automations: []string{"shipmint_update"},
		placeholders: []string{
			"participant.name", "participant.email",
			"exam.type", "exam.openness", "exam.name", "exam.description",
			"exam.totalMarks", "exam.passingMarks", "exam.accessCode",
			"obtainedMarks", "accuracy", "totalCorrect", "totalWrong", "totalNotAttempted", "passingMarks",
		},
	},
	{
		name:         "resource",
		automations:  []string{"new_resource", "resource_update"},
		placeholders: []string{"course", "enrolled-course", "exam", "book", "result", "shipmint"},
	},
	{
		name:         "forum",
		automations:  []string{"new_forum", "forum_update", "forum_post_reply"},
		placeholders: []string{"name", "description", "tags"},
	},
	{
		name:         "blog",
		automations:  []string{"new_blog", "blog_update", "blog_announcement"},
		placeholders: []string{"name", "description", "tags"},
	},
	{
		name: "order",
		automations: []string{
			"new_order", "order_update", "order_announcement", "order_confirmation", "order_refund",
		},
		placeholders: []string{
			"customer_name", "order_id", "order_date", "order_time", "payment_method", "paid_amount", "appname",
		},
	},
	{
		name:         "promotion",
		automations:  []string{"new_promotion"},
		placeholders: []string{},
	},
}

func lookupResource(resourceName string) (resourceCatalog, bool) {
	for _, rc := range catalog {
		if rc.name == resourceName {
			return rc, true
		}
	}
	return resourceCatalog{}, false
}

// IsKnownResource はカタログに登録されたリソース名である場合にtrueを返す。
func IsKnownResource(resourceName string) bool {
	_, ok := lookupResource(resourceName)
	return ok
}

// ResourceOptions はリソース名の選択肢を返す。
func ResourceOptions() []Option {
	names := make([]string, 0, len(catalog))
	for _, rc := range catalog {
		names = append(names, rc.name)
	}
	return toOptions(names)
}

// AutomationOptions はリソースに対応するオートメーション名の選択肢を返す。
// 未知のリソースの場合は空スライスを返す。
func AutomationOptions(resourceName string) []Option {
	rc, ok := lookupResource(resourceName)
	if !ok {
		return []Option{}
	}
	return toOptions(rc.automations)
}

// Placeholders はリソースで利用できるプレースホルダ名を返す。
// 未知のリソースの場合は空スライスを返す。
func Placeholders(resourceName string) []string {
	rc, ok := lookupResource(resourceName)
	if !ok {
		return []string{}
	}
	out := make([]string, len(rc.placeholders))
	copy(out, rc.placeholders)
	return out
}

func toOptions(values []string) []Option {
	options := make([]Option, 0, len(values))
	for _, v := range values {
		options = append(options, Option{Label: humanize(v), Value: v})
	}
	return options
}

// humanize は "new_course" を "New Course" のような表示用ラベルに変換する。
func humanize(value string) string {
	words := strings.FieldsFunc(value, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
