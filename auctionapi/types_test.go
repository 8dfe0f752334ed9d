package auctionapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/hotiron/core"
)

func TestReceiptCOSE_EncodeBase64(t *testing.T) {
	coseBytes := ReceiptCOSE([]byte("mock-cose-receipt-data"))

	encoded := coseBytes.EncodeBase64()
	check.NotEqual(t, "", encoded.String())

	decoded, err := encoded.Decode()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decoded)
}

func TestReceiptCOSEBase64_Decode(t *testing.T) {
	tests := []struct {
		name      string
		input     ReceiptCOSEBase64
		wantErr   bool
		errSubstr string
	}{
		{
			name:    "valid base64",
			input:   "bW9jay1jb3NlLXJlY2VpcHQ=",
			wantErr: false,
		},
		{
			name:      "empty",
			input:     "",
			wantErr:   true,
			errSubstr: "empty receipt document",
		},
		{
			name:      "illegal characters",
			input:     "not-valid-base64!!!@@@",
			wantErr:   true,
			errSubstr: "decode base64",
		},
		{
			name:      "wrong padding",
			input:     "abc",
			wantErr:   true,
			errSubstr: "decode base64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.input.Decode()

			if tt.wantErr {
				check.NotNil(t, err)
				check.True(t, strings.Contains(err.Error(), tt.errSubstr))
				check.Nil(t, result)
			} else {
				check.Nil(t, err)
				check.NotNil(t, result)
			}
		})
	}
}

func TestReceiptCOSE_CompressGzip(t *testing.T) {
	coseBytes := ReceiptCOSE([]byte("mock-cose-receipt-data-for-compression-testing"))

	compressed, err := coseBytes.CompressGzip()
	check.Nil(t, err)

	compressedStr := compressed.String()
	check.NotEqual(t, "", compressedStr)
	check.False(t, strings.ContainsAny(compressedStr, "+/="))

	again, err := coseBytes.CompressGzip()
	check.Nil(t, err)
	check.Equal(t, compressed, again)

	decompressed, err := compressed.Decompress()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decompressed)
}

func TestReceiptCOSEGzip_Decompress_Invalid(t *testing.T) {
	tests := []struct {
		name           string
		input          ReceiptCOSEGzip
		errorSubstring string
	}{
		{
			name:           "invalid base64url",
			input:          "!!!invalid!!!",
			errorSubstring: "decode base64",
		},
		{
			name:           "valid base64 but not gzip",
			input:          "bW9jaw",
			errorSubstring: "gzip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.input.Decompress()

			check.NotNil(t, err)
			check.Nil(t, result)
			check.True(t, strings.Contains(err.Error(), tt.errorSubstring))
		})
	}
}

func TestReceipt_DecodePayload(t *testing.T) {
	_, err := Receipt{Mode: ReceiptModeNSM}.DecodePayload()
	check.Error(t, err)

	r := Receipt{Mode: ReceiptModeNSM, Payload: base64.StdEncoding.EncodeToString([]byte{0xa0})}
	data, err := r.DecodePayload()
	assert.NoError(t, err)
	check.Equal(t, []byte{0xa0}, data)
}

func TestNewRunResponse_WireShape(t *testing.T) {
	result := &core.AuctionResult{
		Winner:        core.BidBreakdown{SellerName: "Nucor", NetPricePerTon: 801.5},
		BuyerLocation: core.Point{Lat: 41.8781, Lon: -87.6298},
	}

	data, err := json.Marshal(NewRunResponse("", result, nil))
	assert.NoError(t, err)

	var fields map[string]json.RawMessage
	assert.NoError(t, json.Unmarshal(data, &fields))
	check.Equal(t, 3, len(fields))
	check.Equal(t, "[]", string(fields["bids"]))
	check.Equal(t, `{"lat":41.8781,"lon":-87.6298}`, string(fields["buyer_location"]))

	data, err = json.Marshal(NewRunResponse("run-1", result, &Receipt{Mode: ReceiptModeCOSE, Document: "AA=="}))
	assert.NoError(t, err)
	check.True(t, strings.Contains(string(data), `"run_id":"run-1"`))
	check.True(t, strings.Contains(string(data), `"receipt":{"mode":"cose","document":"AA=="}`))
}

func TestReceiptPayload_Time(t *testing.T) {
	p := ReceiptPayload{TimestampMs: 1767225600123}
	check.Equal(t, int64(1767225600123), p.Time().UnixMilli())
}

func TestLoadOpenAPI(t *testing.T) {
	doc, err := LoadOpenAPI(context.Background())
	assert.NoError(t, err)

	for _, path := range []string{"/health", "/sellers", "/auction/run", "/auction/history", "/admin/sellers/reload"} {
		check.NotNil(t, doc.Paths.Find(path))
	}
	check.NotNil(t, doc.Components.Schemas["BidBreakdown"])
}
