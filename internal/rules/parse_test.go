package rules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidy-go/internal/rules"
	"tidy-go/internal/tidy"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		expr    string
		want    tidy.Condition
		wantErr bool
	}{
		{expr: "ext=pdf", want: tidy.Condition{Type: tidy.ConditionExtensionEquals, Value: "pdf"}},
		{expr: "name~invoice", want: tidy.Condition{Type: tidy.ConditionNameContains, Value: "invoice"}},
		{expr: "name^Screenshot", want: tidy.Condition{Type: tidy.ConditionNameStartsWith, Value: "Screenshot"}},
		{expr: "name$_final", want: tidy.Condition{Type: tidy.ConditionNameEndsWith, Value: "_final"}},
		{expr: "size>10MB", want: tidy.Condition{Type: tidy.ConditionSizeLargerThan, Value: "10MB"}},
		{expr: "size<1KB", want: tidy.Condition{Type: tidy.ConditionSizeSmallerThan, Value: "1KB"}},
		{expr: "age>30", want: tidy.Condition{Type: tidy.ConditionOlderThanDays, Value: "30"}},
		{expr: "location=downloads", want: tidy.Condition{Type: tidy.ConditionSourceLocation, Value: "downloads"}},
		{expr: "ext=", wantErr: true},
		{expr: "size>lots", wantErr: true},
		{expr: "age>-1", wantErr: true},
		{expr: "location=attic", wantErr: true},
		{expr: "color=red", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := rules.ParseCondition(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.expr, rules.FormatCondition(got))
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"1KB", 1024},
		{"10mb", 10 << 20},
		{"1.5GB", 3 << 29},
		{"2 TB", 2 << 40},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := rules.ParseSize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := rules.ParseSize("")
	assert.Error(t, err)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "10 MB", rules.FormatSize(10<<20))
	assert.Equal(t, "1536 B", rules.FormatSize(1536))
	assert.Equal(t, "1 KB", rules.FormatSize(1024))
}
