// Package models defines the plaintext planner types the client works with.
// Everything here exists only in client memory; the server ever sees these
// structures encrypted.
package models

import (
	"encoding/json"
	"time"
)

// Entry is a single checklist line inside a planner item. IDs are stable
// across edits so replicas can be matched entry by entry during a merge.
type Entry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item is one planner item: a titled checklist. A shared item is encrypted
// with its own DEK; unshared items only ever live inside the workspace blob.
type Item struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
	Entries   []Entry   `json:"entries"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Workspace is the whole plaintext document serialized into the workspace
// blob before encryption.
type Workspace struct {
	Items []Item `json:"items"`
}

func (w *Workspace) Encode() ([]byte, error) {
	return json.Marshal(w)
}

func DecodeWorkspace(data []byte) (*Workspace, error) {
	var w Workspace
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (i *Item) Encode() ([]byte, error) {
	return json.Marshal(i)
}

func DecodeItem(data []byte) (*Item, error) {
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

// FindItem returns a pointer into w.Items or nil.
func (w *Workspace) FindItem(id string) *Item {
	for n := range w.Items {
		if w.Items[n].ID == id {
			return &w.Items[n]
		}
	}
	return nil
}

// UpsertItem replaces the item with the same ID or appends it.
func (w *Workspace) UpsertItem(item Item) {
	for n := range w.Items {
		if w.Items[n].ID == item.ID {
			w.Items[n] = item
			return
		}
	}
	w.Items = append(w.Items, item)
}
