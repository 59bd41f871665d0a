// nexor/contact/fallback.go
package contact

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"nexor/config"
	"nexor/models"
	"nexor/utils"

	"github.com/google/uuid"
)

// FallbackStore keeps contact submissions that could not be delivered as a
// JSON array under a single storage key.
type FallbackStore struct {
	mu      sync.Mutex
	storage models.StorageService
	key     string
}

// NewFallbackStore stores records under config.ContactsKey.
func NewFallbackStore(storage models.StorageService) *FallbackStore {
	return &FallbackStore{storage: storage, key: config.ContactsKey}
}

// Append gives the record an id and adds it to the end of the list.
func (fs *FallbackStore) Append(form models.ContactForm) (models.ContactForm, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	records, err := fs.load()
	if err != nil {
		return form, err
	}
	form.ID = uuid.NewString()
	records = append(records, form)
	if err := fs.save(records); err != nil {
		return form, err
	}
	return form, nil
}

// List returns every stored record in insertion order.
func (fs *FallbackStore) List() ([]models.ContactForm, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.load()
}

// Clear removes every stored record.
func (fs *FallbackStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.storage.DeleteFile(fs.key)
}

// Drain hands the current records to fn and clears the store only if fn
// succeeds.
func (fs *FallbackStore) Drain(fn func([]models.ContactForm) error) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	records, err := fs.load()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	if err := fn(records); err != nil {
		return 0, err
	}
	if err := fs.storage.DeleteFile(fs.key); err != nil {
		return 0, fmt.Errorf("records synced but fallback not cleared: %w", err)
	}
	return len(records), nil
}

func (fs *FallbackStore) load() ([]models.ContactForm, error) {
	data, err := fs.storage.ReadFile(fs.key)
	if errors.Is(err, utils.ErrFileNotFound) {
		return []models.ContactForm{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fallback contacts: %w", err)
	}
	records := []models.ContactForm{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("fallback contacts are corrupt: %w", err)
	}
	return records, nil
}

func (fs *FallbackStore) save(records []models.ContactForm) error {
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if _, err := fs.storage.SaveFile(fs.key, data, "application/json"); err != nil {
		return fmt.Errorf("failed to write fallback contacts: %w", err)
	}
	return nil
}
