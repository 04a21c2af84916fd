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

		counters := core.NewBaseCollection("queue_counters")
		counters.Fields.Add(
			&core.RelationField{Name: "event", Required: true, CollectionId: events.Id, MaxSelect: 1, CascadeDelete: true},
			&core.NumberField{Name: "seq", OnlyInt: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		// One counter row per event; NextSeq upserts against this.
		counters.AddIndex("idx_queue_counters_event", true, "event", "")
		if err := app.Save(counters); err != nil {
			return err
		}

		queue := core.NewBaseCollection("event_queue")
		queue.Fields.Add(
			&core.RelationField{Name: "event", Required: true, CollectionId: events.Id, MaxSelect: 1, CascadeDelete: true},
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1, CascadeDelete: false},
			&core.NumberField{Name: "seq", Required: true, OnlyInt: true},
			&core.SelectField{Name: "status", MaxSelect: 1, Values: []string{
				"waiting", "admitted", "purchased", "expired", "left",
			}},
			&core.DateField{Name: "joined_at"},
			&core.DateField{Name: "expires_at"},
			&core.DateField{Name: "cooldown_until"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		queue.AddIndex("idx_event_queue_event_status_seq", false, "event, status, seq", "")
		queue.AddIndex("idx_event_queue_event_user", false, "event, user", "")
		queue.AddIndex("idx_event_queue_expires_at", false, "expires_at", "")
		return app.Save(queue)
	}, func(app core.App) error {
		for _, name := range []string{"event_queue", "queue_counters"} {
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
