// Package notify sends the quota-limited subscription lifecycle emails.
package notify

import (
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/model"
)

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustTemplate(typ model.EmailType, subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New(string(typ) + "_subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(string(typ) + "_body").Option("missingkey=zero").Parse(body)),
	}
}

var templates = map[model.EmailType]emailTemplate{
	model.EmailWelcome: mustTemplate(model.EmailWelcome,
		"Welcome to The Daily Worker",
		"Thanks for joining The Daily Worker as a {{or .tier_name .tier}} member.\n\n"+
			"Your membership is active. Independent labor reporting depends on readers like you.\n"),
	model.EmailPaymentReceipt: mustTemplate(model.EmailPaymentReceipt,
		"Your Daily Worker receipt",
		"We received your {{or .tier_name .tier}} payment{{with .price}} of {{.}}{{end}}.\n"+
			"{{with .period_end}}Your membership renews on {{.}}.\n{{end}}"),
	model.EmailPaymentFailed: mustTemplate(model.EmailPaymentFailed,
		"Action needed: your Daily Worker payment failed",
		"We could not process your {{or .tier_name .tier}} payment.\n\n"+
			"Please update your payment details to keep your membership active.\n"),
	model.EmailPlanChanged: mustTemplate(model.EmailPlanChanged,
		"Your Daily Worker plan changed",
		"Your membership is now {{or .tier_name .tier}}{{with .price}} at {{.}} per month{{end}}.\n"),
	model.EmailCancellationScheduled: mustTemplate(model.EmailCancellationScheduled,
		"Your Daily Worker membership will end",
		"Your {{or .tier_name .tier}} membership is set to cancel"+
			"{{with .period_end}} on {{.}}{{else}} at the end of the billing period{{end}}.\n\n"+
			"You can resume it any time before then.\n"),
	model.EmailSubscriptionEnded: mustTemplate(model.EmailSubscriptionEnded,
		"Your Daily Worker membership has ended",
		"Your membership has ended. Thank you for supporting worker-owned news.\n"),
}

// Render returns the subject and plain-text body for typ.
func Render(typ model.EmailType, data map[string]string) (subject, body string, err error) {
	tpl, ok := templates[typ]
	if !ok {
		return "", "", eris.Errorf("notify: unknown email type %q", typ)
	}
	var s, b strings.Builder
	if err := tpl.subject.Execute(&s, data); err != nil {
		return "", "", eris.Wrapf(err, "notify: render %s subject", typ)
	}
	if err := tpl.body.Execute(&b, data); err != nil {
		return "", "", eris.Wrapf(err, "notify: render %s body", typ)
	}
	return s.String(), b.String(), nil
}
