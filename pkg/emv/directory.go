package emv

import (
	"fmt"
	"strings"

	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/gregLibert/ccid-emv/pkg/tlv"
	"github.com/moov-io/bertlv"
	"github.com/pkg/errors"
)

var directorySchema = ber.MustSchema(
	ber.Rule{Tag: TagAppTemplate, Label: "Application template", Flags: ber.Template | ber.Sequence},
)

var appTemplateSchema = ber.MustSchema(
	ber.Rule{Tag: TagAID, Label: "ADF name", Flags: ber.CheckSize, Min: 5, Max: 16},
	ber.Rule{Tag: TagAppLabel, Label: "Application label", Flags: ber.Optional},
	ber.Rule{Tag: TagAppPriority, Label: "Application priority indicator", Flags: ber.Optional | ber.CheckSize, Min: 1, Max: 1},
	ber.Rule{Tag: TagDirDiscretionary, Label: "Directory discretionary template", Flags: ber.Template | ber.Optional},
)

// DirectoryDiscretionaryTemplate is tag '73'.
type DirectoryDiscretionaryTemplate struct {
	IssuerCountryCodeAlpha2 []byte `tlv:"5F55" fmt:"ascii"`
	IssuerURL               []byte `tlv:"5F50" fmt:"ascii"`
	LogEntry                []byte `tlv:"9F4D"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ApplicationTemplate (Tag '61') represents an entry in the Payment System Directory.
type ApplicationTemplate struct {
	AID                          []byte                         `tlv:"4F"`
	ApplicationLabel             []byte                         `tlv:"50" fmt:"ascii"`
	ApplicationPriorityIndicator []byte                         `tlv:"87" fmt:"int"`
	DirectoryDiscretionaryData   DirectoryDiscretionaryTemplate `tlv:"73"`
	ApplicationPreferredName     []byte                         `tlv:"9F12" fmt:"ascii"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// App converts the directory entry.
func (a *ApplicationTemplate) App() *App {
	app := &App{
		aid:       append([]byte(nil), a.AID...),
		label:     string(a.ApplicationLabel),
		preferred: string(a.ApplicationPreferredName),
	}
	if len(a.ApplicationPriorityIndicator) == 1 {
		app.priority = a.ApplicationPriorityIndicator[0]
	}
	return app
}

// DirectoryRecord is one record of the payment system directory file,
// wrapped in a record template (tag '70').
type DirectoryRecord struct {
	Applications []ApplicationTemplate `tlv:"61"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParseDirectoryRecord decodes a READ RECORD response of the directory
// file. Every application template must carry a well formed ADF name.
func ParseDirectoryRecord(data []byte) (*DirectoryRecord, error) {
	b, _, err := ber.DecodeBlock(data)
	if err != nil {
		return nil, berError(TagRecordTemplate, err)
	}
	if b.Tag != TagRecordTemplate {
		return nil, berError(TagRecordTemplate, errors.Errorf("record starts with tag %s", b.Tag))
	}

	if _, err := directorySchema.Validate(b.Content); err != nil {
		return nil, berError(TagRecordTemplate, err)
	}
	err = ber.Walk(b.Content, func(h ber.Header, depth int, content []byte) error {
		if depth == 0 && h.Tag == TagAppTemplate {
			_, err := appTemplateSchema.Validate(content)
			return err
		}
		return ber.SkipChildren
	})
	if err != nil {
		return nil, berError(TagAppTemplate, err)
	}

	packets, err := bertlv.Decode(b.Content)
	if err != nil {
		return nil, berError(TagRecordTemplate, err)
	}
	record := &DirectoryRecord{}
	if err := tlv.UnmarshalPackets(packets, record); err != nil {
		return nil, berError(TagRecordTemplate, err)
	}
	return record, nil
}

// Apps returns the applications listed in the record.
func (r *DirectoryRecord) Apps() []*App {
	out := make([]*App, 0, len(r.Applications))
	for i := range r.Applications {
		out = append(out, r.Applications[i].App())
	}
	return out
}

// Describe generates a report for all applications found in the record.
func (r *DirectoryRecord) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== EMV DIRECTORY RECORD ===")

	tlv.WriteStructFields(&sb, "Record", r)
	for i, app := range r.Applications {
		prefix := fmt.Sprintf("App[%d]", i+1)
		tlv.WriteStructFields(&sb, prefix, app)
		tlv.WriteStructFields(&sb, prefix+".Discretionary", app.DirectoryDiscretionaryData)
	}

	return strings.TrimRight(sb.String(), "\n")
}
