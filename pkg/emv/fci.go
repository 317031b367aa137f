package emv

import (
	"strings"

	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/gregLibert/ccid-emv/pkg/tlv"
	"github.com/moov-io/bertlv"
	"github.com/pkg/errors"
)

// FILE CONTROL INFORMATION (FCI):
// SELECT answers with an FCI template (6F) holding the DF name (84) and a
// proprietary template (A5). For a payment system directory A5 names the
// SFI of the directory file; for an application it carries the label,
// priority and the PDOL used by GET PROCESSING OPTIONS.

var fciSchema = ber.MustSchema(
	ber.Rule{Tag: TagDFName, Label: "DF name", Flags: ber.CheckSize, Min: 5, Max: 16},
	ber.Rule{Tag: TagFCIProprietary, Label: "FCI proprietary template", Flags: ber.Template},
)

// FCI represents the EMV-specific File Control Information returned in response to a SELECT command.
type FCI struct {
	DFName              []byte                 `tlv:"84" fmt:"ascii"`
	ProprietaryTemplate FCIProprietaryTemplate `tlv:"A5"`
}

// FCIProprietaryTemplate contains the issuer-specific data found in tag 'A5'.
type FCIProprietaryTemplate struct {
	ApplicationLabel []byte `tlv:"50" fmt:"ascii"`

	ApplicationPriorityIndicator []byte `tlv:"87" fmt:"int"`
	SFI                          []byte `tlv:"88"`
	PDOL                         []byte `tlv:"9F38"`
	LanguagePreference           []byte `tlv:"5F2D" fmt:"ascii"`
	IssuerCodeTableIndex         []byte `tlv:"9F11" fmt:"int"`
	ApplicationPreferredName     []byte `tlv:"9F12" fmt:"ascii"`

	IssuerDiscretionaryData *FCIIssuerDiscretionaryData `tlv:"BF0C"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FCIIssuerDiscretionaryData is tag 'BF0C'.
type FCIIssuerDiscretionaryData struct {
	LogEntry    []byte `tlv:"9F4D"`
	IssuerURL   []byte `tlv:"5F50" fmt:"ascii"`
	IBAN        []byte `tlv:"5F53" fmt:"ascii"`
	CountryCode []byte `tlv:"5F55" fmt:"ascii"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParseFCI decodes a SELECT response. The 6F wrapper is optional.
func ParseFCI(data []byte) (*FCI, error) {
	if len(data) == 0 {
		return nil, berError(TagFCITemplate, errors.New("empty FCI"))
	}

	body := data
	if b, _, err := ber.DecodeBlock(data); err == nil && b.Tag == TagFCITemplate {
		body = b.Content
	}
	if _, err := fciSchema.Validate(body); err != nil {
		return nil, berError(TagFCITemplate, err)
	}

	packets, err := bertlv.Decode(body)
	if err != nil {
		return nil, berError(TagFCITemplate, err)
	}
	fci := &FCI{}
	if err := tlv.UnmarshalPackets(packets, fci); err != nil {
		return nil, berError(TagFCITemplate, err)
	}
	return fci, nil
}

// PDOL returns the processing options data object list, if any.
func (f *FCI) PDOL() []byte { return f.ProprietaryTemplate.PDOL }

// DirectorySFI returns the SFI of a payment system directory. Cards that
// omit tag 88 keep the directory in SFI 1.
func (f *FCI) DirectorySFI() byte {
	if sfi := f.ProprietaryTemplate.SFI; len(sfi) == 1 && sfi[0] != 0 {
		return sfi[0]
	}
	return 1
}

// App describes the selected application.
func (f *FCI) App() *App {
	p := f.ProprietaryTemplate
	app := &App{
		aid:       append([]byte(nil), f.DFName...),
		label:     string(p.ApplicationLabel),
		preferred: string(p.ApplicationPreferredName),
	}
	if len(p.ApplicationPriorityIndicator) == 1 {
		app.priority = p.ApplicationPriorityIndicator[0]
	}
	return app
}

// Describe generates a detailed, standardized report of the FCI content.
func (f *FCI) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV FCI TEMPLATE ===")

	tlv.WriteStructFields(&sb, "FCI", f)
	tlv.WriteStructFields(&sb, "Proprietary", f.ProprietaryTemplate)
	if f.ProprietaryTemplate.IssuerDiscretionaryData != nil {
		tlv.WriteStructFields(&sb, "Discretionary", f.ProprietaryTemplate.IssuerDiscretionaryData)
	}

	return strings.TrimRight(sb.String(), "\n")
}
