package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		tickets, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}

		// Append-only audit trail; records are never updated or
		// deleted by application code.
		collection := core.NewBaseCollection("scan_history")
		collection.Fields.Add(
			&core.RelationField{
				Name:         "ticket_id",
				Required:     true,
				CollectionId: tickets.Id,
				MaxSelect:    1,
			},
			&core.TextField{Name: "scanned_by", Max: 100},
			&core.DateField{Name: "scanned_at", Required: true},
			&core.TextField{Name: "location", Max: 200},
			&core.TextField{Name: "device_info", Max: 500},
			&core.SelectField{
				Name:      "scan_type",
				MaxSelect: 1,
				Values:    []string{"qr_code", "backup_code"},
			},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		collection.AddIndex("idx_scan_history_ticket", false, "ticket_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("scan_history")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
