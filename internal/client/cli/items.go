package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/avoronov/planvault/internal/client/models"
	"github.com/google/uuid"
)

func (a *App) List(ctx context.Context) error {
	if err := a.ensureReady(); err != nil {
		return err
	}

	if len(a.doc.Items) == 0 {
		fmt.Println("No items yet. Use 'add'.")
		return nil
	}

	for _, item := range a.doc.Items {
		fmt.Printf("[%s] %s\n", item.ID, item.Title)
		for _, e := range item.Entries {
			mark := " "
			if e.Done {
				mark = "x"
			}
			fmt.Printf("  [%s] (%s) %s\n", mark, e.ID, e.Text)
		}
	}
	return nil
}

func (a *App) AddItem(ctx context.Context) error {
	if err := a.ensureReady(); err != nil {
		return err
	}

	title, err := getSimpleText(a.reader, "Item title", os.Stdout)
	if err != nil {
		return err
	}

	item := models.Item{
		ID:        uuid.NewString(),
		Title:     title,
		UpdatedAt: time.Now().UTC(),
	}
	a.doc.UpsertItem(item)

	fmt.Printf("Added item %s. Run 'sync' to publish.\n", item.ID)
	return nil
}

func (a *App) AddEntry(ctx context.Context) error {
	if err := a.ensureReady(); err != nil {
		return err
	}

	itemID, err := getSimpleText(a.reader, "Item id", os.Stdout)
	if err != nil {
		return err
	}
	item := a.doc.FindItem(itemID)
	if item == nil {
		fmt.Println("No such item.")
		return nil
	}

	text, err := getSimpleText(a.reader, "Entry text", os.Stdout)
	if err != nil {
		return err
	}

	item.Entries = append(item.Entries, models.Entry{
		ID:        uuid.NewString(),
		Text:      text,
		UpdatedAt: time.Now().UTC(),
	})
	item.UpdatedAt = time.Now().UTC()

	fmt.Println("Entry added. Run 'sync' to publish.")
	return nil
}

func (a *App) Toggle(ctx context.Context) error {
	if err := a.ensureReady(); err != nil {
		return err
	}

	itemID, err := getSimpleText(a.reader, "Item id", os.Stdout)
	if err != nil {
		return err
	}
	item := a.doc.FindItem(itemID)
	if item == nil {
		fmt.Println("No such item.")
		return nil
	}

	entryID, err := getSimpleText(a.reader, "Entry id", os.Stdout)
	if err != nil {
		return err
	}
	for n := range item.Entries {
		if item.Entries[n].ID == entryID {
			item.Entries[n].Done = !item.Entries[n].Done
			item.Entries[n].UpdatedAt = time.Now().UTC()
			item.UpdatedAt = time.Now().UTC()
			fmt.Println("Toggled.")
			return nil
		}
	}

	fmt.Println("No such entry.")
	return nil
}
