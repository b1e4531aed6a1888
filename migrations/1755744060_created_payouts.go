package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "pbc_1497619452",
			"name": "payouts",
			"type": "base",
			"system": false,
			"fields": [
				{
					"autogeneratePattern": "",
					"hidden": false,
					"id": "text3208210256",
					"max": 0,
					"min": 0,
					"name": "id",
					"pattern": "",
					"presentable": false,
					"primaryKey": true,
					"required": true,
					"system": true,
					"type": "text"
				},
				{
					"autogeneratePattern": "",
					"hidden": false,
					"id": "text1001261735",
					"max": 0,
					"min": 0,
					"name": "event_id",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": true,
					"system": false,
					"type": "text"
				},
				{
					"autogeneratePattern": "",
					"hidden": false,
					"id": "text2375276105",
					"max": 0,
					"min": 0,
					"name": "organizer_id",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": true,
					"system": false,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "select2063623452",
					"maxSelect": 1,
					"name": "status",
					"presentable": false,
					"required": true,
					"system": false,
					"type": "select",
					"values": ["pending", "processing", "completed", "failed", "processing_error"]
				},
				{
					"hidden": false,
					"id": "number2155181291",
					"max": null,
					"min": 0,
					"name": "total_sales",
					"onlyInt": true,
					"presentable": false,
					"required": false,
					"system": false,
					"type": "number"
				},
				{
					"hidden": false,
					"id": "number1416927836",
					"max": null,
					"min": 0,
					"name": "provider_fee_total",
					"onlyInt": true,
					"presentable": false,
					"required": false,
					"system": false,
					"type": "number"
				},
				{
					"hidden": false,
					"id": "number3977066304",
					"max": null,
					"min": 0,
					"name": "platform_fee_total",
					"onlyInt": true,
					"presentable": false,
					"required": false,
					"system": false,
					"type": "number"
				},
				{
					"hidden": false,
					"id": "number2629977749",
					"max": null,
					"min": 0,
					"name": "net_amount",
					"onlyInt": true,
					"presentable": false,
					"required": false,
					"system": false,
					"type": "number"
				},
				{
					"hidden": false,
					"id": "number1705319087",
					"max": null,
					"min": 0,
					"name": "transaction_count",
					"onlyInt": true,
					"presentable": false,
					"required": false,
					"system": false,
					"type": "number"
				},
				{
					"autogeneratePattern": "",
					"hidden": false,
					"id": "text3118394372",
					"max": 0,
					"min": 0,
					"name": "provider_transfer_id",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": false,
					"system": false,
					"type": "text"
				},
				{
					"autogeneratePattern": "",
					"hidden": false,
					"id": "text2438444775",
					"max": 0,
					"min": 0,
					"name": "last_error",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": false,
					"system": false,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "date2990389176",
					"max": "",
					"min": "",
					"name": "created_at",
					"presentable": false,
					"required": false,
					"system": false,
					"type": "date"
				},
				{
					"hidden": false,
					"id": "date3332085495",
					"max": "",
					"min": "",
					"name": "updated_at",
					"presentable": false,
					"required": false,
					"system": false,
					"type": "date"
				}
			],
			"indexes": [
				"CREATE INDEX idx_payouts_event_status ON payouts (event_id, status)",
				"CREATE INDEX idx_payouts_organizer ON payouts (organizer_id)",
				"CREATE INDEX idx_payouts_status ON payouts (status)",
				"CREATE UNIQUE INDEX idx_payouts_one_open ON payouts (event_id) WHERE status IN ('pending', 'processing', 'processing_error')"
			],
			"listRule": null,
			"viewRule": null,
			"createRule": null,
			"updateRule": null,
			"deleteRule": null
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("pbc_1497619452")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
