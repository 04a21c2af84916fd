package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		events, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}
		ticketTypes, err := app.FindCollectionByNameOrId("ticket_types")
		if err != nil {
			return err
		}
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		tickets := core.NewBaseCollection("user_tickets")
		tickets.Fields.Add(
			&core.RelationField{Name: "event", Required: true, CollectionId: events.Id, MaxSelect: 1, CascadeDelete: false},
			&core.RelationField{Name: "ticket_type", Required: true, CollectionId: ticketTypes.Id, MaxSelect: 1, CascadeDelete: false},
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1, CascadeDelete: false},
			&core.TextField{Name: "order_id", Required: true, Max: 64},
			&core.NumberField{Name: "quantity", Required: true, OnlyInt: true},
			&core.TextField{Name: "ticket_number", Required: true, Max: 64},
			&core.TextField{Name: "confirmation_code", Required: true, Max: 32},
			&core.SelectField{Name: "status", MaxSelect: 1, Values: []string{
				"valid", "used", "cancelled",
			}},
			&core.DateField{Name: "purchased_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		tickets.AddIndex("idx_user_tickets_order", false, "order_id", "")
		tickets.AddIndex("idx_user_tickets_user", false, "user", "")
		if err := app.Save(tickets); err != nil {
			return err
		}

		ledger := core.NewBaseCollection("inventory_ledger")
		ledger.Fields.Add(
			&core.TextField{Name: "subject", Required: true, Max: 64},
			&core.NumberField{Name: "delta", Required: true, OnlyInt: true},
			&core.SelectField{Name: "reason", MaxSelect: 1, Values: []string{
				"purchase", "restock",
			}},
			&core.TextField{Name: "order_id", Max: 64},
			&core.DateField{Name: "created_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		ledger.AddIndex("idx_inventory_ledger_subject", false, "subject", "")
		ledger.AddIndex("idx_inventory_ledger_order", false, "order_id", "")
		return app.Save(ledger)
	}, func(app core.App) error {
		for _, name := range []string{"inventory_ledger", "user_tickets"} {
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
