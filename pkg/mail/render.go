package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"neokudilonga/pkg/domain"
)

// Bank transfer details printed when the customer pays by transfer.
const (
	PaymentTransfer = "transferencia"
	TransferIBAN    = "BIC AO06 0051 0000 8030 4996 1512 5"
	TransferHolder  = "NEOKUDILONGA"
	ShopSignature   = "NEOKUDILONGA - Livraria Escolar & Jogos Educativos"
	ShopContacts    = "WhatsApp: +244 919 948 887 | Email: neokudilonga@gmail.com"
)

// Message is a rendered email.
type Message struct {
	To      Address
	Bcc     []string
	Subject string
	Text    string
	HTML    string
}

type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

type copyText struct {
	Subject, Thanks, Hello, Registered, Details, School, Student, Total, Payment, Products,
	Instructions, TransferHelp, Greeting string
}

var copies = map[domain.Language]copyText{
	domain.LangPT: {
		Subject:      "Confirmação de Encomenda - %s",
		Thanks:       "Obrigado pela sua encomenda!",
		Hello:        "Olá",
		Registered:   "A sua encomenda com a referência %s foi registada com sucesso.",
		Details:      "Detalhes do Pedido",
		School:       "Escola",
		Student:      "Aluno",
		Total:        "Total",
		Payment:      "Método de Pagamento",
		Products:     "Produtos",
		Instructions: "Instruções de Pagamento",
		TransferHelp: "Por favor, realize a transferência para o IBAN abaixo e envie o comprovativo.",
		Greeting:     "Olá %s, recebemos o seu pedido %s. Total: %s.",
	},
	domain.LangEN: {
		Subject:      "Order Confirmation - %s",
		Thanks:       "Thank you for your order!",
		Hello:        "Hello",
		Registered:   "Your order with reference %s has been successfully registered.",
		Details:      "Order Details",
		School:       "School",
		Student:      "Student",
		Total:        "Total",
		Payment:      "Payment Method",
		Products:     "Products",
		Instructions: "Payment Instructions",
		TransferHelp: "Please make the transfer to the IBAN below and send the proof.",
		Greeting:     "Hello %s, we received your order %s. Total: %s.",
	},
}

type lineView struct {
	Name     string
	Quantity int
	Price    string
}

type confirmationView struct {
	T          copyText
	Order      domain.Order
	Registered string
	Greeting   string
	Total      string
	Items      []lineView
	Transfer   bool
	IBAN       string
	Holder     string
	Signature  string
	Contacts   string
}

var htmlConfirmation = htmltemplate.Must(htmltemplate.New("confirmation.html").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #eee; border-radius: 10px;">
<h2 style="color: #184f3f; text-align: center;">{{.T.Thanks}}</h2>
<p>{{.T.Hello}} <strong>{{.Order.GuardianName}}</strong>,</p>
<p>{{.Registered}}</p>
<div style="background-color: #f9f9f9; padding: 15px; border-radius: 5px; margin: 20px 0;">
<h3 style="margin-top: 0;">{{.T.Details}}</h3>
<p><strong>{{.T.School}}:</strong> {{.Order.SchoolName}}</p>
<p><strong>{{.T.Student}}:</strong> {{.Order.StudentName}}</p>
<p><strong>{{.T.Total}}:</strong> {{.Total}}</p>
<p><strong>{{.T.Payment}}:</strong> {{.Order.PaymentMethod}}</p>
</div>
<h3>{{.T.Products}}</h3>
<ul style="list-style: none; padding: 0;">
{{- range .Items}}
<li style="padding: 10px 0; border-bottom: 1px solid #eee;"><strong>{{.Name}}</strong><br>{{.Quantity}} x {{.Price}}</li>
{{- end}}
</ul>
{{- if .Transfer}}
<div style="background-color: #fff9e6; border-left: 4px solid #ffcc00; padding: 15px; margin: 20px 0;">
<h4 style="margin-top: 0;">{{.T.Instructions}}</h4>
<p>{{.T.TransferHelp}}</p>
<p><strong>IBAN:</strong> {{.IBAN}}</p>
<p><strong>Titular:</strong> {{.Holder}}</p>
</div>
{{- end}}
<div style="text-align: center; margin-top: 30px; font-size: 12px; color: #888;">
<p>{{.Signature}}</p>
<p>{{.Contacts}}</p>
</div>
</div>
`))

var textConfirmation = texttemplate.Must(texttemplate.New("confirmation.txt").Parse(`{{.Greeting}}

{{.T.Details}}
{{.T.School}}: {{.Order.SchoolName}}
{{.T.Student}}: {{.Order.StudentName}}
{{.T.Total}}: {{.Total}}
{{.T.Payment}}: {{.Order.PaymentMethod}}

{{.T.Products}}
{{- range .Items}}
- {{.Name}}: {{.Quantity}} x {{.Price}}
{{- end}}
{{if .Transfer}}
{{.T.Instructions}}
{{.T.TransferHelp}}
IBAN: {{.IBAN}}
Titular: {{.Holder}}
{{end}}
{{.Signature}}
{{.Contacts}}
`))

// FormatKwanza renders an amount the way pt-PT prints AOA.
func FormatKwanza(amount int64) string {
	return message.NewPrinter(language.EuropeanPortuguese).Sprintf("%d Kz", amount)
}

// RenderOrderConfirmation builds the confirmation email in the order's
// language. bcc, when set, receives a blind copy.
func RenderOrderConfirmation(order domain.Order, bcc string) (Message, error) {
	lang := domain.ParseLanguage(string(order.Language))
	t := copies[lang]
	view := confirmationView{
		T:          t,
		Order:      order,
		Registered: fmt.Sprintf(t.Registered, order.Reference),
		Total:      FormatKwanza(order.Total),
		Transfer:   strings.EqualFold(order.PaymentMethod, PaymentTransfer),
		IBAN:       TransferIBAN,
		Holder:     TransferHolder,
		Signature:  ShopSignature,
		Contacts:   ShopContacts,
	}
	view.Greeting = fmt.Sprintf(t.Greeting, order.GuardianName, order.Reference, view.Total)
	for _, item := range order.Items {
		name := item.Name.Text(lang)
		if name == domain.PlaceholderName {
			name = "Item"
		}
		view.Items = append(view.Items, lineView{Name: name, Quantity: item.Quantity, Price: FormatKwanza(item.Price)})
	}

	var html, text bytes.Buffer
	if err := htmlConfirmation.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	if err := textConfirmation.Execute(&text, view); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	msg := Message{
		To:      Address{Name: order.GuardianName, Email: order.Email},
		Subject: fmt.Sprintf(t.Subject, order.Reference),
		Text:    text.String(),
		HTML:    html.String(),
	}
	if bcc = strings.TrimSpace(bcc); bcc != "" {
		msg.Bcc = []string{bcc}
	}
	return msg, nil
}
