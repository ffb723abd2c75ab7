package secrets_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/Strob0t/LLManager/internal/secrets"
)

func TestNewVault_InitialLoad(t *testing.T) {
	v, err := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{secrets.LiteLLMMasterKey: "sk-1234"}, nil
	})
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	if got := v.Get(secrets.LiteLLMMasterKey); got != "sk-1234" {
		t.Fatalf("expected 'sk-1234', got %q", got)
	}
	if got := v.Get("MISSING"); got != "" {
		t.Fatalf("expected empty string for missing key, got %q", got)
	}
}

func TestNewVault_LoaderError(t *testing.T) {
	_, err := secrets.NewVault(func() (map[string]string, error) {
		return nil, errors.New("connection refused")
	})
	if err == nil {
		t.Fatal("expected error from failing loader")
	}
}

func TestVault_ReloadRunsCallbacks(t *testing.T) {
	callCount := 0
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		callCount++
		if callCount == 1 {
			return map[string]string{secrets.APIKeyHashes: "h1"}, nil
		}
		return map[string]string{secrets.APIKeyHashes: "h2, h3,"}, nil
	})

	var got []string
	v.OnReload(func(v *secrets.Vault) { got = v.GetList(secrets.APIKeyHashes) })

	if err := v.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if len(got) != 2 || got[0] != "h2" || got[1] != "h3" {
		t.Fatalf("callback saw %v, want [h2 h3]", got)
	}
}

func TestVault_ReloadErrorPreservesValues(t *testing.T) {
	callCount := 0
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		callCount++
		if callCount == 1 {
			return map[string]string{"KEY": "original"}, nil
		}
		return nil, errors.New("vault unavailable")
	})
	called := false
	v.OnReload(func(*secrets.Vault) { called = true })

	if err := v.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := v.Get("KEY"); got != "original" {
		t.Fatalf("expected 'original' after failed reload, got %q", got)
	}
	if called {
		t.Error("callback ran after a failed reload")
	}
}

func TestVault_ConcurrentAccess(t *testing.T) {
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{"K": "V"}, nil
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = v.Get("K")
		}()
		go func() {
			defer wg.Done()
			_ = v.Reload()
		}()
	}
	wg.Wait()
}

func TestVault_Redacted(t *testing.T) {
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{"API_KEY": "sk-abcdef123456", "SHORT": "ab"}, nil
	})
	tests := []struct{ key, want string }{
		{"API_KEY", "sk****"},
		{"SHORT", "****"},
		{"MISSING", ""},
	}
	for _, tt := range tests {
		if got := v.Redacted(tt.key); got != tt.want {
			t.Errorf("Redacted(%s) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestEnvLoaderWithDefaults(t *testing.T) {
	t.Setenv("LLM_TEST_SECRET", "from-env")
	loader := secrets.WithDefaults(
		secrets.EnvLoader("LLM_TEST_SECRET", "LLM_MISSING_SECRET"),
		map[string]string{"LLM_TEST_SECRET": "from-file", "LLM_MISSING_SECRET": "fallback", "EMPTY": ""},
	)

	vals, err := loader()
	if err != nil {
		t.Fatalf("loader failed: %v", err)
	}
	if vals["LLM_TEST_SECRET"] != "from-env" {
		t.Errorf("env should win, got %q", vals["LLM_TEST_SECRET"])
	}
	if vals["LLM_MISSING_SECRET"] != "fallback" {
		t.Errorf("default not applied, got %q", vals["LLM_MISSING_SECRET"])
	}
	if _, ok := vals["EMPTY"]; ok {
		t.Error("empty default should be omitted")
	}
}
