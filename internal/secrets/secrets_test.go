package secrets

import (
	"context"
	"testing"
)

func TestInMemorySecretStore_SetAndGet(t *testing.T) {
	store := NewInMemorySecretStore()
	ctx := context.Background()

	store.SetSecret("encryption-key", "relay-enc-key")

	value, err := store.GetSecret(ctx, "encryption-key")
	if err != nil {
		t.Fatalf("GetSecret() error = %v", err)
	}
	if value != "relay-enc-key" {
		t.Errorf("GetSecret() = %v, want relay-enc-key", value)
	}
}

func TestInMemorySecretStore_GetNotFound(t *testing.T) {
	store := NewInMemorySecretStore()

	_, err := store.GetSecret(context.Background(), "nonexistent")
	if err == nil {
		t.Error("GetSecret() should return error for nonexistent secret")
	}
}

func TestInMemorySecretStore_Overwrite(t *testing.T) {
	store := NewInMemorySecretStore()

	store.SetSecret("encryption-key", "first")
	store.SetSecret("encryption-key", "second")

	value, _ := store.GetSecret(context.Background(), "encryption-key")
	if value != "second" {
		t.Errorf("GetSecret() = %v, want second", value)
	}
}
