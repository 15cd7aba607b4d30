package fingerprint

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	utls "github.com/refraction-networking/utls"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		in      string
		want    Profile
		wantErr bool
	}{
		{"", ProfileGo, false},
		{"go", ProfileGo, false},
		{" Chrome ", ProfileChrome, false},
		{"firefox", ProfileFirefox, false},
		{"safari", ProfileSafari, false},
		{"random", ProfileRandom, false},
		{"netscape", "", true},
	}

	for _, tt := range tests {
		got, err := ParseProfile(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownProfile) {
				t.Errorf("ParseProfile(%q): expected ErrUnknownProfile, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseProfile(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseProfile(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProfiles(t *testing.T) {
	got := Profiles()
	if len(got) != 5 {
		t.Fatalf("expected 5 profiles, got %v", got)
	}
	if got[0] != "chrome" || got[len(got)-1] != "safari" {
		t.Errorf("expected sorted profile list, got %v", got)
	}
}

func TestTransport_Profiles(t *testing.T) {
	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom} {
		t.Run(string(p), func(t *testing.T) {
			rt, err := Transport(p, nil)
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}
			if p == ProfileGo {
				tr, ok := rt.(*http.Transport)
				if !ok {
					t.Fatalf("expected *http.Transport, got %T", rt)
				}
				if tr.DialTLSContext != nil {
					t.Errorf("go profile should use the standard TLS dialer")
				}
				return
			}
			ft, ok := rt.(*fingerprintTransport)
			if !ok {
				t.Fatalf("expected *fingerprintTransport, got %T", rt)
			}
			if tr := ft.transport(nil); tr.DialTLSContext == nil {
				t.Errorf("%s profile should install a utls dialer", p)
			}
		})
	}
}

func TestTransport_GoRoundTrip(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	rt, err := Transport(ProfileGo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := rt.(*http.Transport)
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	resp, err := (&http.Client{Transport: tr}).Get(ts.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 OK, got %d", resp.StatusCode)
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(Profile("unknown_browser"), nil)
	if !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
}

func TestClient_OffersOnlyHTTP1(t *testing.T) {
	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari} {
		local, remote := net.Pipe()
		uConn, err := client(local, "example.com", helloIDs[p])
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		found := false
		for _, ext := range uConn.Extensions {
			if alpn, ok := ext.(*utls.ALPNExtension); ok {
				found = true
				if len(alpn.AlpnProtocols) != 1 || alpn.AlpnProtocols[0] != "http/1.1" {
					t.Errorf("%s: ALPN = %v, want [http/1.1]", p, alpn.AlpnProtocols)
				}
			}
		}
		if !found {
			t.Errorf("%s: no ALPN extension", p)
		}
		_ = local.Close()
		_ = remote.Close()
	}
}
