package providers

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		mock := NewMockDescriber()

		r.Register("test", mock)

		d, err := r.Get("test")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if d != mock {
			t.Error("got different describer than registered")
		}
	})

	t.Run("get nonexistent", func(t *testing.T) {
		if _, err := NewRegistry().Get("nonexistent"); err == nil {
			t.Error("expected error for nonexistent describer")
		}
	})

	t.Run("list is sorted", func(t *testing.T) {
		r := NewRegistry()
		r.Register("b", NewMockDescriber())
		r.Register("a", NewMockDescriber())

		names := r.List()
		if len(names) != 2 || names[0] != "a" || names[1] != "b" {
			t.Errorf("List() = %v, want [a b]", names)
		}
	})

	t.Run("unregister", func(t *testing.T) {
		r := NewRegistry()
		r.Register("x", NewMockDescriber())
		r.Unregister("x")
		if r.Has("x") {
			t.Error("expected x to be removed")
		}
	})

	t.Run("info", func(t *testing.T) {
		r := NewRegistry()
		r.Register("local", NewOllamaDescriber(OllamaConfig{Model: "llava:13b", RateLimit: 1}))

		infos := r.Info()
		if len(infos) != 1 {
			t.Fatalf("Info() returned %d entries", len(infos))
		}
		if infos[0].Type != OllamaName || infos[0].Model != "llava:13b" {
			t.Errorf("unexpected info: %+v", infos[0])
		}
		if infos[0].Limit.RPS != 1 {
			t.Errorf("Limit.RPS = %v, want 1", infos[0].Limit.RPS)
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				r.Register(fmt.Sprintf("d%d", i), NewMockDescriber())
			}(i)
			go func() {
				defer wg.Done()
				r.List()
			}()
		}
		wg.Wait()
		if len(r.List()) != 50 {
			t.Errorf("List() has %d entries, want 50", len(r.List()))
		}
	})
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfgs := map[string]DescriberConfig{
		"openai":   {Type: TypeOpenAI, APIKey: "sk-test", Enabled: true},
		"nokey":    {Type: TypeOpenRouter, Enabled: true},
		"disabled": {Type: TypeOllama, Enabled: false},
		"local":    {Type: TypeOllama, Enabled: true},
		"mock":     {Type: TypeMock, Enabled: true},
		"bogus":    {Type: "carrier-pigeon", Enabled: true},
	}

	r := NewRegistryFromConfig(cfgs, nil)

	for _, name := range []string{"openai", "local", "mock"} {
		if !r.Has(name) {
			t.Errorf("expected %s to be registered", name)
		}
	}
	for _, name := range []string{"nokey", "disabled", "bogus"} {
		if r.Has(name) {
			t.Errorf("expected %s to be skipped", name)
		}
	}

	d, _ := r.Get("openai")
	if _, ok := d.(*OpenAIDescriber); !ok {
		t.Errorf("openai entry has type %T", d)
	}
}

func TestRegistry_Reload(t *testing.T) {
	t.Run("adds and removes", func(t *testing.T) {
		r := NewRegistryFromConfig(map[string]DescriberConfig{
			"a": {Type: TypeMock, Enabled: true},
		}, nil)

		r.Reload(map[string]DescriberConfig{
			"b": {Type: TypeMock, Enabled: true},
		})

		if r.Has("a") {
			t.Error("expected a to be removed")
		}
		if !r.Has("b") {
			t.Error("expected b to be added")
		}
	})

	t.Run("keeps unchanged config", func(t *testing.T) {
		cfg := map[string]DescriberConfig{"local": {Type: TypeOllama, Model: "llava:7b", Enabled: true}}
		r := NewRegistryFromConfig(cfg, nil)
		before, _ := r.Get("local")

		r.Reload(cfg)
		after, _ := r.Get("local")
		if before != after {
			t.Error("expected describer to be reused")
		}
	})

	t.Run("recreates changed config", func(t *testing.T) {
		r := NewRegistryFromConfig(map[string]DescriberConfig{
			"local": {Type: TypeOllama, Model: "llava:7b", Enabled: true},
		}, nil)
		before, _ := r.Get("local")

		r.Reload(map[string]DescriberConfig{
			"local": {Type: TypeOllama, Model: "llava:13b", Enabled: true},
		})
		after, _ := r.Get("local")
		if before == after {
			t.Error("expected describer to be recreated")
		}
		if after.(*OllamaDescriber).Model() != "llava:13b" {
			t.Errorf("Model() = %q", after.(*OllamaDescriber).Model())
		}
	})

	t.Run("leaves registered describers alone", func(t *testing.T) {
		r := NewRegistry()
		r.Register("manual", NewMockDescriber())
		r.Reload(map[string]DescriberConfig{})
		if !r.Has("manual") {
			t.Error("expected manually registered describer to survive reload")
		}
	})

	t.Run("concurrent reload is safe", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				r.Reload(map[string]DescriberConfig{"m": {Type: TypeMock, Enabled: true}})
			}()
			go func() {
				defer wg.Done()
				r.Info()
			}()
		}
		wg.Wait()
	})
}
