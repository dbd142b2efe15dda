package core

import (
	"testing"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.VerifyToken = "verify"
	cfg.Bots = []BotConfig{{PageID: "p1", AccessToken: "t1"}}
	return cfg
}

func TestConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := map[string]func(*Config){
		"missing verify token": func(c *Config) { c.VerifyToken = " " },
		"missing webhook":      func(c *Config) { c.Webhook = "/" },
		"negative timeout":     func(c *Config) { c.RequestTimeout = -1 },
		"missing page id":      func(c *Config) { c.Bots[0].PageID = "" },
		"missing access token": func(c *Config) { c.Bots[0].AccessToken = "" },
		"duplicate page":       func(c *Config) { c.Bots = append(c.Bots, BotConfig{PageID: " p1 ", AccessToken: "t2"}) },
		"unknown session":      func(c *Config) { c.Session.Backend = "etcd" },
		"redis without url":    func(c *Config) { c.Session.Backend = SessionBackendRedis },
		"unknown transport": func(c *Config) {
			c.UseMessageQueue = true
			c.Queue.Transport = "amqp"
		},
		"no workers": func(c *Config) {
			c.UseMessageQueue = true
			c.Queue.Workers = 0
		},
		"shared queue": func(c *Config) {
			c.Queue.UseOutboundQueue = true
			c.Queue.Outbound.Queue = c.Queue.Inbound.Queue
		},
		"missing inbound queue": func(c *Config) {
			c.UseMessageQueue = true
			c.Queue.Inbound = QueueBinding{}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestConfigValidate_QueueChecksOnlyWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Queue.Transport = "amqp"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected queue settings to be ignored while disabled, got %v", err)
	}

	cfg.Queue.DeadLetter = QueueBinding{}
	cfg.Queue.Transport = QueueTransportSQL
	cfg.UseMessageQueue = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected dead letter binding to be optional, got %v", err)
	}
}

func TestConfigBotLookup(t *testing.T) {
	cfg := validConfig()
	bot, ok := cfg.Bot(" p1 ")
	if !ok {
		t.Fatalf("expected bot p1")
	}
	if bot.AccessToken != "t1" {
		t.Fatalf("expected token t1, got %q", bot.AccessToken)
	}

	if _, ok := cfg.Bot("p2"); ok {
		t.Fatalf("expected p2 to be missing")
	}
}

func TestQueueBindingNormalized(t *testing.T) {
	binding := QueueBinding{Transport: " SQL ", Queue: " messages "}.Normalized()
	if binding.Transport != "sql" {
		t.Fatalf("expected sql transport, got %q", binding.Transport)
	}
	if binding.Exchange != DefaultExchange {
		t.Fatalf("expected default exchange, got %q", binding.Exchange)
	}
	if binding.RoutingKey != "messages" {
		t.Fatalf("expected routing key to default to the queue, got %q", binding.RoutingKey)
	}
	if key := binding.Key(); key != DefaultExchange+"/messages" {
		t.Fatalf("unexpected binding key %q", key)
	}
	if err := (QueueBinding{}).Validate(); err == nil {
		t.Fatalf("expected empty binding to be invalid")
	}
	if !(QueueBinding{Exchange: "x"}).IsZero() {
		t.Fatalf("expected binding without queue to be zero")
	}
}
