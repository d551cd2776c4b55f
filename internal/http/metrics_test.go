package http

import "testing"

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{
			"/v1/vaults/0x00000000000000000000000000000000000000aa/1/actions",
			"/v1/vaults/{vault}/{domain}/actions",
		},
		{
			"/v1/vaults/0x00000000000000000000000000000000000000aa/1/actions/" +
				"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			"/v1/vaults/{vault}/{domain}/actions/{fingerprint}",
		},
		{
			"/v1/vaults/0x00000000000000000000000000000000000000aa/1/actions/" +
				"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa/approvals",
			"/v1/vaults/{vault}/{domain}/actions/{fingerprint}/approvals",
		},
		{
			"/v1/vaults/0x00000000000000000000000000000000000000aa/1/verify",
			"/v1/vaults/{vault}/{domain}/verify",
		},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.in); got != tc.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
