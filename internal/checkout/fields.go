package checkout

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/gateway"
)

const (
	SecureInputID = "secure-input"
	tokenizerPath = "/static/js/blockchyp-tokenizer-all.min.js"
)

// Settings are the gateway options the renderer needs.
type Settings struct {
	Enabled          bool
	TestMode         bool
	TokenizingKey    string
	GatewayHost      string
	TestGatewayHost  string
	RenderPostalCode bool
}

// Field is one input of the payment form.
type Field struct {
	Name      string `json:"name"`
	Label     string `json:"label,omitempty"`
	Type      string `json:"type"`
	MaxLength int    `json:"max_length,omitempty"`
}

// Fields is the card-entry widget configuration plus its markup.
type Fields struct {
	TokenizingKey   string        `json:"tokenizing_key"`
	Test            bool          `json:"test"`
	GatewayHost     string        `json:"gateway_host"`
	TestGatewayHost string        `json:"test_gateway_host"`
	ElementID       string        `json:"element_id"`
	ScriptURL       string        `json:"script_url"`
	Inputs          []Field       `json:"inputs"`
	HTML            template.HTML `json:"html"`
}

var fieldsTmpl = template.Must(template.New("fields").Parse(`<div>
  <label class="checkout-label">Card Number</label>
  <div id="{{.ElementID}}"></div>
  <div id="{{.ElementID}}-error" class="alert alert-danger" style="display: none;"></div>
</div>
{{- range .Inputs}}
{{- if eq .Type "hidden"}}
<input type="hidden" id="{{.Name}}" name="{{.Name}}"/>
{{- else}}
<div>
  <label class="checkout-label" for="{{.Name}}">{{.Label}}</label>
  <input class="checkout-input" type="{{.Type}}" id="{{.Name}}" name="{{.Name}}"{{if .MaxLength}} maxlength="{{.MaxLength}}"{{end}}/>
</div>
{{- end}}
{{- end}}
<script src="{{.ScriptURL}}"></script>
<script>
  tokenizer.gatewayHost = {{.GatewayHost}};
  tokenizer.testGatewayHost = {{.TestGatewayHost}};
  tokenizer.render({{.TokenizingKey}}, {{.Test}}, {{.ElementID}}, {postalCode: false});
</script>
`))

// RenderFields builds the payment fields for the checkout page.
func RenderFields(s Settings) (*Fields, error) {
	if !s.Enabled {
		return nil, domainErrors.ErrGatewayDisabled
	}

	hosts := gateway.Settings{GatewayHost: s.GatewayHost, TestGatewayHost: s.TestGatewayHost}
	f := &Fields{
		TokenizingKey:   s.TokenizingKey,
		Test:            s.TestMode,
		GatewayHost:     hosts.Host(false),
		TestGatewayHost: hosts.Host(true),
		ElementID:       SecureInputID,
		ScriptURL:       TokenizerScriptURL(hosts, s.TestMode),
		Inputs: []Field{
			{Name: FieldCardholderName, Label: "Cardholder Name", Type: "text"},
			{Name: FieldToken, Type: "hidden"},
		},
	}
	if s.RenderPostalCode {
		f.Inputs = append(f.Inputs, Field{Name: FieldPostalCode, Label: "Postal Code", Type: "text", MaxLength: 5})
	}

	var buf bytes.Buffer
	if err := fieldsTmpl.Execute(&buf, f); err != nil {
		return nil, fmt.Errorf("render payment fields: %w", err)
	}
	f.HTML = template.HTML(buf.String())
	return f, nil
}

// TokenizerScriptURL returns the tokenizer script for live or test mode.
func TokenizerScriptURL(hosts gateway.Settings, test bool) string {
	return strings.TrimRight(hosts.Host(test), "/") + tokenizerPath
}
