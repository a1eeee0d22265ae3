package main

import "testing"

func TestDescribeFrame(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			`{"type":"slices_changed","data":{"angles":[0,120,240],"percentages":[25,25,50],"labels":["Rum","Cola",""],"selected":1,"from_user":true}}`,
			"[SLICES] Rum 25% | *Cola 25% | #3 50% (user)",
		},
		{`{"type":"online_changed","data":{"online":false}}`, "[OFFLINE]"},
		{`{"type":"notice","data":{"message":"The mixer is in bar mode. Control not available"}}`, "[NOTICE] The mixer is in bar mode. Control not available"},
		{`{"type":"timespan_changed","data":{"timespan_ms":480,"from_user":false}}`, "[TIMESPAN] 480ms from_user=false"},
		{`not json`, "[TEXT] not json"},
	}

	for _, tt := range tests {
		if got := describeFrame([]byte(tt.in)); got != tt.want {
			t.Errorf("describeFrame(%s)\n got  %q\n want %q", tt.in, got, tt.want)
		}
	}
}
