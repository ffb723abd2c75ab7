package mcp

import "testing"

func TestTenantFromReviewsURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"llmanager://tenants/acme/reviews", "acme", false},
		{"llmanager://tenants//reviews", "", true},
		{"llmanager://tenants/a/b/reviews", "", true},
		{"other://tenants/acme/reviews", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := tenantFromReviewsURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("tenant = %q, want %q", got, tt.want)
			}
		})
	}
}
