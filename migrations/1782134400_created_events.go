package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		events := core.NewBaseCollection("events")
		events.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 255},
			&core.NumberField{Name: "capacity", Required: true, OnlyInt: true},
			&core.NumberField{Name: "tickets_sold", OnlyInt: true},
			&core.NumberField{Name: "admitted_slots", OnlyInt: true},
			&core.DateField{Name: "sale_start_at"},
			&core.DateField{Name: "sale_end_at"},
			&core.SelectField{Name: "sale_status", MaxSelect: 1, Values: []string{
				"upcoming", "on_sale", "sold_out", "cancelled",
			}},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		events.AddIndex("idx_events_sale_status", false, "sale_status", "")
		if err := app.Save(events); err != nil {
			return err
		}

		ticketTypes := core.NewBaseCollection("ticket_types")
		ticketTypes.Fields.Add(
			&core.RelationField{Name: "event", Required: true, CollectionId: events.Id, MaxSelect: 1, CascadeDelete: true},
			&core.TextField{Name: "name", Required: true, Max: 255},
			&core.NumberField{Name: "price", Required: true},
			&core.NumberField{Name: "quantity", Required: true, OnlyInt: true},
			&core.NumberField{Name: "quantity_sold", OnlyInt: true},
			&core.DateField{Name: "sale_start_at"},
			&core.DateField{Name: "sale_end_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		ticketTypes.AddIndex("idx_ticket_types_event", false, "event", "")
		return app.Save(ticketTypes)
	}, func(app core.App) error {
		for _, name := range []string{"ticket_types", "events"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
