package main

import (
	"strings"
	"testing"

	"dbella/pos/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("expected short AUTH_SECRET to be rejected")
	}
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", SeedAdminPassword: "12345678"})
	if err == nil {
		t.Fatalf("expected weak seed password to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", SeedAdminPassword: "Labial-Rubi-2024"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}); err != nil {
		t.Fatalf("expected config without seed password to pass, got %v", err)
	}
}

func TestValidateSecurityConfigChecksEverySeedPassword(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	err := validateSecurityConfig(config.Config{AuthSecret: secret, SeedManagerPassword: "abcdefgh"})
	if err == nil || !strings.Contains(err.Error(), "SEED_MANAGER_PASSWORD") {
		t.Fatalf("expected weak manager password to be rejected, got %v", err)
	}
	err = validateSecurityConfig(config.Config{AuthSecret: secret, SeedSellerPassword: "corta"})
	if err == nil || !strings.Contains(err.Error(), "SEED_SELLER_PASSWORD") {
		t.Fatalf("expected short seller password to be rejected, got %v", err)
	}
}

func TestValidateSecurityConfigRefusesDefaultSeedsOutsideDevelopment(t *testing.T) {
	cfg := config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", Env: "production"}
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected in-memory store with default passwords to be rejected in production")
	}

	cfg.SeedAdminPassword = "Labial-Rubi-2024"
	cfg.SeedManagerPassword = "Sombra-Ocre-2024"
	cfg.SeedSellerPassword = "Rubor-Coral-2024"
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected explicit seed passwords to pass, got %v", err)
	}

	if err := validateSecurityConfig(config.Config{AuthSecret: cfg.AuthSecret, Env: "production", DatabaseURL: "postgres://pos@db/pos"}); err != nil {
		t.Fatalf("expected postgres deployment without seed passwords to pass, got %v", err)
	}

	seeds := seedUsers(cfg)
	if seeds.AdminPassword != cfg.SeedAdminPassword || seeds.SellerPassword != cfg.SeedSellerPassword {
		t.Fatalf("seed credentials not taken from config: %+v", seeds)
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	for _, weak := range []string{"aaaaaaaa", "abcdefgh", "hgfedcba", "Password"} {
		if err := validatePasswordStrength(weak); err == nil {
			t.Fatalf("expected %q to be rejected", weak)
		}
	}
}

func TestNewMediaStoreRejectsUnknownDriver(t *testing.T) {
	if _, _, err := newMediaStore(config.Config{MediaDriver: "ftp"}); err == nil {
		t.Fatalf("expected unknown media driver to be rejected")
	}
	if _, _, err := newMediaStore(config.Config{MediaDriver: "bucket"}); err == nil {
		t.Fatalf("expected bucket driver without url to be rejected")
	}
	store, dir, err := newMediaStore(config.Config{MediaDriver: "local", MediaLocalDir: t.TempDir(), MediaPublicURL: "/media"})
	if err != nil || store == nil || dir == "" {
		t.Fatalf("expected local media store, got %v %q %v", store, dir, err)
	}
}
