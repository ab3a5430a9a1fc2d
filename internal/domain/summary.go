package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

const (
	MetaCheckoutSessionID = "checkout_session_id"
	MetaBuyerID           = "buyer_id"
	MetaVendorChunks      = "vendor_chunks"
	MetaVendorChunkPrefix = "vendors_"

	maxMetadataValueLen = 500
	maxVendorChunks     = 45
	maxSummaryNameRunes = 40
)

// VendorSummary is the compact per-vendor entry carried in payment metadata.
type VendorSummary struct {
	VendorID         string `json:"v"`
	PaymentAccountID string `json:"a"`
	Subtotal         Cents  `json:"s"`
	ShippingFee      Cents  `json:"f"`
	Total            Cents  `json:"t"`
	Name             string `json:"n,omitempty"`
}

const vendorSummarySchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["v", "a", "s", "f", "t"],
    "properties": {
      "v": {"type": "string", "minLength": 1},
      "a": {"type": "string"},
      "s": {"type": "integer", "minimum": 0},
      "f": {"type": "integer", "minimum": 0},
      "t": {"type": "integer", "minimum": 0},
      "n": {"type": "string"}
    }
  }
}`

var summarySchema = mustSchema(vendorSummarySchema)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("domain: invalid summary schema: %v", err))
	}
	return s
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// EncodeSummaries packs summaries into metadata entries of bounded size.
func EncodeSummaries(summaries []VendorSummary) (map[string]string, error) {
	const op = "domain.EncodeSummaries"
	out := map[string]string{}
	var chunks []string
	var current []VendorSummary

	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		b, err := json.Marshal(current)
		if err != nil {
			return Wrap(CodeInternal, op, err)
		}
		chunks = append(chunks, string(b))
		current = nil
		return nil
	}

	for _, s := range summaries {
		s.Name = truncateRunes(s.Name, maxSummaryNameRunes)
		single, err := json.Marshal([]VendorSummary{s})
		if err != nil {
			return nil, Wrap(CodeInternal, op, err)
		}
		if len(single) > maxMetadataValueLen {
			return nil, Failf(ErrValidation, op, "vendor %s summary exceeds metadata limits", s.VendorID)
		}
		candidate, err := json.Marshal(append(append([]VendorSummary{}, current...), s))
		if err != nil {
			return nil, Wrap(CodeInternal, op, err)
		}
		if len(candidate) > maxMetadataValueLen {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		current = append(current, s)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(chunks) > maxVendorChunks {
		return nil, Failf(ErrValidation, op, "too many vendors for one checkout (%d chunks)", len(chunks))
	}
	for i, c := range chunks {
		out[MetaVendorChunkPrefix+strconv.Itoa(i)] = c
	}
	out[MetaVendorChunks] = strconv.Itoa(len(chunks))
	return out, nil
}

// DecodeSummaries reverses EncodeSummaries, validating every chunk against the summary schema.
func DecodeSummaries(metadata map[string]string) ([]VendorSummary, error) {
	const op = "domain.DecodeSummaries"
	n, err := strconv.Atoi(strings.TrimSpace(metadata[MetaVendorChunks]))
	if err != nil || n <= 0 || n > maxVendorChunks {
		return nil, Failf(ErrValidation, op, "invalid %s=%q", MetaVendorChunks, metadata[MetaVendorChunks])
	}
	var out []VendorSummary
	for i := 0; i < n; i++ {
		key := MetaVendorChunkPrefix + strconv.Itoa(i)
		raw, ok := metadata[key]
		if !ok {
			return nil, Failf(ErrValidation, op, "missing metadata chunk %s", key)
		}
		res, err := summarySchema.Validate(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return nil, Failf(ErrValidation, op, "chunk %s is not json: %v", key, err)
		}
		if !res.Valid() {
			msgs := make([]string, 0, len(res.Errors()))
			for _, e := range res.Errors() {
				msgs = append(msgs, e.String())
			}
			return nil, Failf(ErrValidation, op, "chunk %s: %s", key, strings.Join(msgs, "; "))
		}
		var part []VendorSummary
		if err := json.Unmarshal([]byte(raw), &part); err != nil {
			return nil, Failf(ErrValidation, op, "chunk %s: %v", key, err)
		}
		out = append(out, part...)
	}
	return out, nil
}
