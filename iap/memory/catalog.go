package memory

import (
	"os"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v2"

	"github.com/moonbird-apps/iap-server/model"
)

// Product is a sandbox catalog entry. Prices are exact decimals; the
// float in the wire model is derived at render time.
type Product struct {
	ID          string
	Title       string
	Description string
	Price       decimal.Decimal
	Currency    currency.Unit
	Symbol      string
	Consumable  bool
}

// The sandbox always renders prices the way a US storefront would.
var printer = message.NewPrinter(language.AmericanEnglish)

// Details renders the catalog entry into its wire form.
func (p Product) Details() model.ProductDetails {
	raw := p.Price.InexactFloat64()
	return model.ProductDetails{
		ID:             p.ID,
		Title:          p.Title,
		Description:    p.Description,
		Price:          printer.Sprintf("%v", currency.Symbol(p.Currency.Amount(raw))),
		RawPrice:       raw,
		CurrencyCode:   p.Currency.String(),
		CurrencySymbol: p.Symbol,
	}
}

type catalogFile struct {
	Country  string         `yaml:"country"`
	Products []productEntry `yaml:"products"`
}

type productEntry struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Currency    string `yaml:"currency"`
	Symbol      string `yaml:"symbol"`
	Consumable  bool   `yaml:"consumable"`
}

// ParseCatalog parses a YAML sandbox catalog. It returns the products
// and the storefront country declared in the file, if any.
func ParseCatalog(data []byte) ([]Product, string, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, "", errors.Wrap(err, "unmarshalling catalog")
	}

	seen := make(map[string]struct{}, len(file.Products))
	products := make([]Product, 0, len(file.Products))
	for i, entry := range file.Products {
		if entry.ID == "" {
			return nil, "", errors.Errorf("catalog product %d is missing an id", i)
		}
		if _, ok := seen[entry.ID]; ok {
			return nil, "", errors.Errorf("catalog product %q declared twice", entry.ID)
		}
		seen[entry.ID] = struct{}{}

		price, err := decimal.NewFromString(entry.Price)
		if err != nil {
			return nil, "", errors.Wrapf(err, "parsing price for product %q", entry.ID)
		}
		if price.IsNegative() {
			return nil, "", errors.Errorf("product %q has a negative price", entry.ID)
		}

		unit, err := currency.ParseISO(entry.Currency)
		if err != nil {
			return nil, "", errors.Wrapf(err, "parsing currency for product %q", entry.ID)
		}

		products = append(products, Product{
			ID:          entry.ID,
			Title:       entry.Title,
			Description: entry.Description,
			Price:       price,
			Currency:    unit,
			Symbol:      entry.Symbol,
			Consumable:  entry.Consumable,
		})
	}
	return products, file.Country, nil
}

// LoadCatalogFile reads and parses a YAML sandbox catalog from disk.
func LoadCatalogFile(path string) ([]Product, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "reading catalog %s", path)
	}
	return ParseCatalog(data)
}
