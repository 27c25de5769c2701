package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		events, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}
		tiers, err := app.FindCollectionByNameOrId("event_tiers")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("tickets")
		collection.Fields.Add(
			&core.RelationField{
				Name:         "user_id",
				Required:     true,
				CollectionId: users.Id,
				MaxSelect:    1,
			},
			&core.RelationField{
				Name:         "event_id",
				Required:     true,
				CollectionId: events.Id,
				MaxSelect:    1,
			},
			&core.RelationField{
				Name:         "tier_id",
				Required:     true,
				CollectionId: tiers.Id,
				MaxSelect:    1,
			},
			&core.TextField{Name: "payment_id", Required: true, Max: 100},
			&core.TextField{Name: "qr_code", Required: true, Max: 100},
			&core.TextField{Name: "backup_code", Required: true, Max: 20},
			&core.TextField{Name: "qr_code_image", Max: 100000},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"active", "used", "cancelled"},
			},
			&core.TextField{Name: "cultural_selections", Max: 2000},
			&core.DateField{Name: "issued_at"},
			&core.DateField{Name: "used_at"},
			&core.DateField{Name: "cancelled_at"},
			&core.TextField{Name: "scanned_by", Max: 100},
			&core.TextField{Name: "scan_location", Max: 200},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		// One ticket per payment and globally unique codes; issuance
		// and redemption lean on these.
		collection.AddIndex("idx_tickets_payment_id", true, "payment_id", "")
		collection.AddIndex("idx_tickets_qr_code", true, "qr_code", "")
		collection.AddIndex("idx_tickets_backup_code", true, "backup_code", "")
		collection.AddIndex("idx_tickets_user", false, "user_id", "")
		collection.AddIndex("idx_tickets_tier_status", false, "tier_id, status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
