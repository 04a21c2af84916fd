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
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		sessions := core.NewBaseCollection("checkout_sessions")
		sessions.Fields.Add(
			&core.RelationField{Name: "event", Required: true, CollectionId: events.Id, MaxSelect: 1, CascadeDelete: true},
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1, CascadeDelete: false},
			&core.DateField{Name: "created_at"},
			&core.DateField{Name: "expires_at"},
			&core.BoolField{Name: "consumed"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		sessions.AddIndex("idx_checkout_sessions_event_user", false, "event, user, consumed", "")
		sessions.AddIndex("idx_checkout_sessions_expires_at", false, "expires_at", "")
		return app.Save(sessions)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("checkout_sessions")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
