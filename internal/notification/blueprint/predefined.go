package blueprint

import (
	"fmt"
	"sort"
	"time"

	"github.com/nao1215/notifly/internal/notification/template"
)

// Branding はすべてのメールに差し込むアプリケーションの表示情報。
// 空の項目は差し込まない。
type Branding struct {
	AppName      string
	AppLogo      string
	AppLink      string
	PrimaryColor string
}

// values はプレースホルダ値として差し込むマップを返す。yearは常に含める。
func (b Branding) values(now time.Time) map[string]*template.Value {
	out := map[string]*template.Value{"year": template.Int(int64(now.Year()))}
	for key, v := range map[string]string{
		"appname":      b.AppName,
		"applogo":      b.AppLogo,
		"applink":      b.AppLink,
		"primaryColor": b.PrimaryColor,
	} {
		if v != "" {
			out[key] = template.String(v)
		}
	}
	return out
}

// mailTemplate はアプリケーションに組み込みの定型メール。
type mailTemplate struct {
	subject string
	body    string
}

// mails はメール名ごとの組み込みテンプレート。
var mails = map[string]mailTemplate{
	"registration": {
		subject: "Registration OTP For {{appname}}",
		body: "Hello {{name}},\n\n" +
			"Your verification code for {{appname}} is {{otp}}.\n" +
			"Enter this code to complete your registration.\n\n" +
			"(c) {{year}} {{appname}}",
	},
	"forgot-password": {
		subject: "Reset Password For {{appname}}",
		body: "Hello {{name}},\n\n" +
			"Use the code {{otp}} to reset your {{appname}} password.\n" +
			"If you did not request this, you can ignore this email.\n\n" +
			"(c) {{year}} {{appname}}",
	},
	"admin-new-user": {
		subject: "New User By Admin of {{appname}}",
		body: "Hello {{name}},\n\n" +
			"An administrator created a {{appname}} account for {{email}}.\n" +
			"Your temporary password is {{password}}.\n\n" +
			"(c) {{year}} {{appname}}",
	},
	"payment-confirmation": {
		subject: "Payment Confirmation",
		body: "Hello {{name}},\n\n" +
			"We received your payment of {{amount}} for order {{order_id}}.\n\n" +
			"(c) {{year}} {{appname}}",
	},
	"welcome": {
		subject: "Welcome to {{appname}}",
		body: "Hello {{name}},\n\n" +
			"Welcome to {{appname}}. We are glad to have you.\n\n" +
			"(c) {{year}} {{appname}}",
	},
}

// MailNames は組み込みの定型メール名を辞書順で返す。
func MailNames() []string {
	names := make([]string, 0, len(mails))
	for name := range mails {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsKnownMail は組み込みの定型メール名である場合にtrueを返す。
func IsKnownMail(name string) bool {
	_, ok := mails[name]
	return ok
}

func lookupMail(name string) (mailTemplate, error) {
	m, ok := mails[name]
	if !ok {
		return mailTemplate{}, fmt.Errorf("%w: 定型メール %q", ErrNotFound, name)
	}
	return m, nil
}
