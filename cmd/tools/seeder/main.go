package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

type tier struct {
	Mode    string
	From    float64
	To      *float64
	Price   float64
	Name    string
	Default bool
}

type minimum struct {
	Group     string
	Mode      string
	MinQty    float64
	Calc      string
	Fixed     float64
	FixedMode string
	Priority  int
	Note      string
	From      string
	Till      string
}

type item struct {
	ID       string
	Name     string
	Group    string
	Tiers    []tier
	Minimums []minimum
}

func upTo(v float64) *float64 { return &v }

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedCustomers(db)
	seedItems(db)
	seedAddOns(db)
	seedTemplates(db)

	log.Println("Seeding completed successfully!")
}

func seedCustomers(db *sql.DB) {
	customers := []struct {
		ID    string
		Name  string
		Group string
	}{
		{"CUST-0001", "Tipografia Rossi", "Retail"},
		{"CUST-0002", "Studio Grafico Bianchi", "Retail"},
		{"CUST-0003", "Allestimenti Verdi", "Wholesale"},
		{"CUST-0004", "Fiere Nord", "Wholesale"},
		{"CUST-0005", "Walk-in", ""},
	}

	fmt.Println("Seeding Customers...")
	for _, c := range customers {
		_, err := db.Exec(`
			INSERT INTO customers (customer_id, customer_name, customer_group)
			VALUES ($1, $2, NULLIF($3, ''))
			ON CONFLICT (customer_id) DO UPDATE SET
				customer_name = EXCLUDED.customer_name,
				customer_group = EXCLUDED.customer_group;
		`, c.ID, c.Name, c.Group)
		if err != nil {
			log.Printf("Failed to seed customer %s: %v", c.ID, err)
		}
	}
}

func seedItems(db *sql.DB) {
	items := []item{
		{
			ID: "VINYL-STD", Name: "Adhesive vinyl", Group: "Print",
			Tiers: []tier{
				{Mode: "AREA", From: 0, To: upTo(1), Price: 30, Name: "Small"},
				{Mode: "AREA", From: 1, To: upTo(5), Price: 25, Name: "Medium"},
				{Mode: "AREA", From: 5, Price: 20, Name: "Large", Default: true},
			},
			Minimums: []minimum{
				{Group: "Retail", Mode: "AREA", MinQty: 1, Calc: "PER_LINE", Note: "one square meter per line"},
				{Group: "Wholesale", Mode: "AREA", MinQty: 3, Calc: "GLOBAL_PER_DOCUMENT", Fixed: 15, FixedMode: "PER_ITEM_TOTAL", Note: "setup once per order"},
			},
		},
		{
			ID: "BANNER-PVC", Name: "PVC banner", Group: "Print",
			Tiers: []tier{
				{Mode: "LENGTH", From: 0, To: upTo(10), Price: 12, Name: "Roll"},
				{Mode: "LENGTH", From: 10, Price: 9, Name: "Bulk"},
				{Mode: "AREA", From: 0, Price: 18, Name: "Area", Default: true},
			},
			Minimums: []minimum{
				{Group: "Retail", Mode: "LENGTH", MinQty: 2, Calc: "PER_LINE", Fixed: 5, FixedMode: "PER_LINE"},
				{Group: "All Customer Groups", Mode: "AREA", MinQty: 0.5, Calc: "GLOBAL_PER_DOCUMENT", Fixed: 10, FixedMode: "PER_DOCUMENT"},
			},
		},
		{
			ID: "FOREX-5MM", Name: "Forex panel 5mm", Group: "Rigid",
			Tiers: []tier{
				{Mode: "COUNT", From: 1, To: upTo(10), Price: 8, Name: "Single"},
				{Mode: "COUNT", From: 10, Price: 6.5, Name: "Pack"},
			},
			Minimums: []minimum{
				{Group: "Retail", Mode: "COUNT", MinQty: 5, Calc: "PER_LINE", Priority: 1},
				{Group: "Wholesale", Mode: "COUNT", MinQty: 20, Calc: "GLOBAL_PER_DOCUMENT", Note: "trade fair season", From: "2026-01-01", Till: "2026-03-31"},
				{Group: "Wholesale", Mode: "COUNT", MinQty: 10, Calc: "GLOBAL_PER_DOCUMENT", From: "2026-04-01"},
			},
		},
	}

	fmt.Println("Seeding Items...")
	for _, it := range items {
		if err := seedItem(db, it); err != nil {
			log.Printf("Failed to seed item %s: %v", it.ID, err)
		}
	}
}

func seedItem(db *sql.DB, it item) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO items (item_id, item_name, item_group) VALUES ($1, $2, $3)
		ON CONFLICT (item_id) DO UPDATE SET item_name = EXCLUDED.item_name, item_group = EXCLUDED.item_group;
	`, it.ID, it.Name, it.Group); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM item_pricing_tiers WHERE item_id = $1`, it.ID); err != nil {
		return err
	}
	for _, t := range it.Tiers {
		if _, err := tx.Exec(`
			INSERT INTO item_pricing_tiers (item_id, selling_mode, from_qty, to_qty, price_per_unit, tier_name, is_default)
			VALUES ($1, $2, $3, $4, $5, $6, $7);
		`, it.ID, t.Mode, t.From, t.To, t.Price, t.Name, t.Default); err != nil {
			return fmt.Errorf("tier %s: %w", t.Name, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM customer_group_minimums WHERE item_id = $1`, it.ID); err != nil {
		return err
	}
	for _, m := range it.Minimums {
		if _, err := tx.Exec(`
			INSERT INTO customer_group_minimums
				(item_id, customer_group, selling_mode, min_qty, calculation_mode, fixed_cost, fixed_cost_mode, priority, description,
				 valid_from, valid_till)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, '')::date, NULLIF($11, '')::date);
		`, it.ID, m.Group, m.Mode, m.MinQty, m.Calc, m.Fixed, m.FixedMode, m.Priority, m.Note, m.From, m.Till); err != nil {
			return fmt.Errorf("minimum %s/%s: %w", m.Group, m.Mode, err)
		}
	}
	return tx.Commit()
}

func seedAddOns(db *sql.DB) {
	addOns := []struct {
		ID        string
		Name      string
		Type      string
		Price     float64
		AllItems  bool
		ItemGroup string
	}{
		{"lamination", "Matte lamination", "PER_AREA", 4, false, "Print"},
		{"eyelets", "Eyelets", "FIXED", 0.5, false, "Print"},
		{"rush", "Rush delivery", "PERCENT", 15, true, ""},
	}

	fmt.Println("Seeding Add-ons...")
	for _, a := range addOns {
		_, err := db.Exec(`
			INSERT INTO item_addons (id, name, pricing_type, price)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, pricing_type = EXCLUDED.pricing_type, price = EXCLUDED.price;
		`, a.ID, a.Name, a.Type, a.Price)
		if err != nil {
			log.Printf("Failed to seed add-on %s: %v", a.ID, err)
			continue
		}
		if _, err := db.Exec(`DELETE FROM item_addon_targets WHERE addon_id = $1`, a.ID); err != nil {
			log.Printf("Failed to reset targets of %s: %v", a.ID, err)
			continue
		}
		_, err = db.Exec(`
			INSERT INTO item_addon_targets (addon_id, all_items, item_group)
			VALUES ($1, $2, NULLIF($3, ''));
		`, a.ID, a.AllItems, a.ItemGroup)
		if err != nil {
			log.Printf("Failed to seed targets of %s: %v", a.ID, err)
		}
	}
}

func seedTemplates(db *sql.DB) {
	type entry struct {
		AddOn           string
		Mandatory       bool
		DefaultSelected bool
	}
	templates := []struct {
		ID      string
		Name    string
		Item    string
		Default bool
		Items   []entry
	}{
		{"vinyl-standard", "Standard finish", "VINYL-STD", true, []entry{{"lamination", true, true}, {"rush", false, false}}},
		{"vinyl-express", "Express", "VINYL-STD", false, []entry{{"lamination", true, true}, {"rush", false, true}}},
		{"banner-outdoor", "Outdoor", "BANNER-PVC", true, []entry{{"eyelets", false, true}}},
	}

	fmt.Println("Seeding Optional Templates...")
	for _, t := range templates {
		_, err := db.Exec(`
			INSERT INTO optional_templates (id, name, item_id, is_default)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, item_id = EXCLUDED.item_id, is_default = EXCLUDED.is_default;
		`, t.ID, t.Name, t.Item, t.Default)
		if err != nil {
			log.Printf("Failed to seed template %s: %v", t.ID, err)
			continue
		}
		if _, err := db.Exec(`DELETE FROM optional_template_items WHERE template_id = $1`, t.ID); err != nil {
			log.Printf("Failed to reset items of %s: %v", t.ID, err)
			continue
		}
		for _, e := range t.Items {
			_, err := db.Exec(`
				INSERT INTO optional_template_items (template_id, addon_id, mandatory, default_selected)
				VALUES ($1, $2, $3, $4);
			`, t.ID, e.AddOn, e.Mandatory, e.DefaultSelected)
			if err != nil {
				log.Printf("Failed to seed %s in template %s: %v", e.AddOn, t.ID, err)
			}
		}
	}
}
