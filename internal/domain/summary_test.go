package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEncodeDecodeSummaries(t *testing.T) {
	in := []VendorSummary{
		{VendorID: "v1", PaymentAccountID: "acct_1", Subtotal: 2598, ShippingFee: 599, Total: 3197, Name: "Alpha Goods"},
		{VendorID: "v2", PaymentAccountID: "acct_2", Subtotal: 1000, ShippingFee: 0, Total: 1000},
	}
	meta, err := EncodeSummaries(in)
	if err != nil {
		t.Fatalf("EncodeSummaries: %v", err)
	}
	if meta[MetaVendorChunks] != "1" {
		t.Fatalf("vendor_chunks: want=%q got=%q", "1", meta[MetaVendorChunks])
	}
	out, err := DecodeSummaries(meta)
	if err != nil {
		t.Fatalf("DecodeSummaries: %v", err)
	}
	if len(out) != 2 || out[0].Total != 3197 || out[1].VendorID != "v2" {
		t.Fatalf("DecodeSummaries: got=%+v", out)
	}
}

func TestEncodeSummariesChunksAndTruncates(t *testing.T) {
	var in []VendorSummary
	for i := 0; i < 30; i++ {
		in = append(in, VendorSummary{
			VendorID:         fmt.Sprintf("vendor-%02d", i),
			PaymentAccountID: fmt.Sprintf("acct_%020d", i),
			Subtotal:         1000,
			ShippingFee:      100,
			Total:            1100,
			Name:             strings.Repeat("n", 80),
		})
	}
	meta, err := EncodeSummaries(in)
	if err != nil {
		t.Fatalf("EncodeSummaries: %v", err)
	}
	if meta[MetaVendorChunks] == "1" {
		t.Fatalf("expected multiple chunks")
	}
	for k, v := range meta {
		if len(v) > 500 {
			t.Fatalf("%s: length %d exceeds 500", k, len(v))
		}
	}
	out, err := DecodeSummaries(meta)
	if err != nil {
		t.Fatalf("DecodeSummaries: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("DecodeSummaries: want=%d got=%d", len(in), len(out))
	}
	if n := len([]rune(out[0].Name)); n != 40 {
		t.Fatalf("name: want 40 runes got=%d", n)
	}
}

func TestDecodeSummariesRejectsMalformedEntries(t *testing.T) {
	cases := []map[string]string{
		{},
		{MetaVendorChunks: "1"},
		{MetaVendorChunks: "1", "vendors_0": `[{"v":"v1","a":"acct","s":-5,"f":0,"t":0}]`},
		{MetaVendorChunks: "1", "vendors_0": `[{"v":"v1","s":1,"f":0,"t":1}]`},
		{MetaVendorChunks: "1", "vendors_0": `not json`},
	}
	for i, meta := range cases {
		_, err := DecodeSummaries(meta)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: want ErrValidation got=%v", i, err)
		}
	}
}
