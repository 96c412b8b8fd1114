package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("market_events")

		collection.Fields.Add(
			&core.TextField{Name: "event_id", Required: true},
			&core.TextField{Name: "type", Required: true},
			&core.NumberField{Name: "listing_id", OnlyInt: true},
			&core.TextField{Name: "account"},
			&core.TextField{Name: "counterparty"},
			&core.TextField{Name: "amount"},
			&core.NumberField{Name: "quantity", OnlyInt: true},
			&core.TextField{Name: "currency"},
			&core.JSONField{Name: "payload", MaxSize: 1 << 16},
			&core.DateField{Name: "occurred_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)

		collection.AddIndex("idx_market_events_event_id", true, "event_id", "")
		collection.AddIndex("idx_market_events_listing", false, "listing_id, occurred_at", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("market_events")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
