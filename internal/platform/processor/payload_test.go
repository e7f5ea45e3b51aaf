package processor

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/reconciler/pkg/config"
)

func TestFromForm_FirstValueWinsAndUnknownFieldsKept(t *testing.T) {
	p := FromForm(url.Values{
		"ORDER":        {"MK1", "MK2"},
		"RC":           {"0"},
		"X_VENDOR_EXT": {"opaque"},
	})
	assert.Equal(t, "MK1", p.MatchingKey())
	assert.Equal(t, "0", p.Get(FieldResponseCode))
	assert.Equal(t, "opaque", p.Get("X_VENDOR_EXT"))
}

func TestFromJSON_PreservesAllFields(t *testing.T) {
	p, err := FromJSON([]byte(`{"ORDER":"MK1","RC":0,"AMOUNT":9.99,"NESTED":{"a":1},"FLAG":true,"NIL":null}`))
	require.NoError(t, err)
	assert.Equal(t, "MK1", p.MatchingKey())
	assert.Equal(t, "0", p.Get("RC"))
	assert.Equal(t, "9.99", p.Get("AMOUNT"))
	assert.Equal(t, `{"a":1}`, p.Get("NESTED"))
	assert.Equal(t, "true", p.Get("FLAG"))
	assert.Equal(t, "", p.Get("NIL"))
}

func TestFromJSON_RejectsNonObjectBody(t *testing.T) {
	_, err := FromJSON([]byte(`not json`))
	require.Error(t, err)
}

func TestCorrelationRef_PrefersTransactionID(t *testing.T) {
	assert.Equal(t, "RRN-1", Payload{FieldTransactionID: "RRN-1", FieldOrder: "MK1"}.CorrelationRef())
	assert.Equal(t, "MK1", Payload{FieldOrder: "MK1"}.CorrelationRef())
}

func TestResultCode(t *testing.T) {
	tests := []struct {
		name   string
		rc     string
		want   int
		wantOK bool
	}{
		{name: "zero", rc: "0", want: 0, wantOK: true},
		{name: "padded", rc: " 00 ", want: 0, wantOK: true},
		{name: "negative", rc: "-19", want: -19, wantOK: true},
		{name: "non numeric", rc: "abc", wantOK: false},
		{name: "absent", rc: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Payload{}
			if tt.rc != "" {
				p[FieldResponseCode] = tt.rc
			}
			got, ok := ResultCode(p)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsSuccess_UsesConfiguredRange(t *testing.T) {
	cfg := &config.ProcessorConfig{SuccessCodeMin: 0, SuccessCodeMax: 99}
	assert.True(t, IsSuccess(0, cfg))
	assert.True(t, IsSuccess(99, cfg))
	assert.False(t, IsSuccess(100, cfg))
	assert.False(t, IsSuccess(-1, cfg))
}
