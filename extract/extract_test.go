package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/carscout/models"
)

const specPage = `<html><head><title>2024 Toyota Camry Specs</title></head>
<body>
<h1>2024 Toyota Camry LE</h1>
<table class="specs">
  <tr><th>Starting MSRP</th><td>$28,400</td></tr>
  <tr><th>Engine</th><td>2.5L 4-cylinder</td></tr>
  <tr><th>Horsepower</th><td>203 hp @ 6,600 rpm</td></tr>
  <tr><th>Torque</th><td>184 lb-ft @ 5,000 rpm</td></tr>
  <tr><th>Transmission</th><td>8-speed automatic</td></tr>
  <tr><th>Drivetrain</th><td>FWD</td></tr>
  <tr><th>Fuel Type</th><td>Regular unleaded</td></tr>
  <tr><th>City/Highway/Combined MPG</th><td>28 / 39 / 32</td></tr>
</table>
<dl>
  <dt>Overall Length</dt><dd>192.1 in.</dd>
  <dt>Wheelbase</dt><dd>111.2 in.</dd>
</dl>
<div class="features"><ul>
  <li>Apple CarPlay</li><li>Adaptive cruise control</li><li>apple carplay</li>
</ul></div>
<div class="dealer-card" itemtype="https://schema.org/AutoDealer">
  <h3>Sunrise Toyota</h3>
  <a href="tel:+1-555-123-4567">Call</a>
  <a href="mailto:sales@sunrise.example">Email</a>
</div>
<script>var price = "$1";</script>
</body></html>`

func TestExtract_SpecPage(t *testing.T) {
	f := New().Extract(specPage, "https://specs.example.com/toyota/camry", Hint{Manufacturer: "Toyota", Model: "Camry"})

	require.NotNil(t, f.StartingMSRP)
	assert.InDelta(t, 28400, *f.StartingMSRP, 0.01)
	require.NotNil(t, f.Performance.Horsepower)
	assert.Equal(t, 203, *f.Performance.Horsepower)
	require.NotNil(t, f.Performance.Torque)
	assert.Equal(t, 184, *f.Performance.Torque)
	assert.Equal(t, "2.5L 4-cylinder", f.Performance.Engine)
	assert.Equal(t, "8-speed automatic", f.Specifications.Transmission)
	assert.Equal(t, "FWD", f.Specifications.Drivetrain)
	assert.Equal(t, "Regular unleaded", f.Specifications.FuelType)
	require.NotNil(t, f.FuelEconomy.Combined)
	assert.InDelta(t, 32, *f.FuelEconomy.Combined, 0.01)
	assert.InDelta(t, 28, *f.FuelEconomy.City, 0.01)
	assert.InDelta(t, 39, *f.FuelEconomy.Highway, 0.01)
	require.NotNil(t, f.Dimensions.Length)
	assert.InDelta(t, 192.1, *f.Dimensions.Length, 0.01)
	assert.InDelta(t, 111.2, *f.Dimensions.Wheelbase, 0.01)
	require.NotNil(t, f.Year)
	assert.Equal(t, 2024, *f.Year)
	assert.Equal(t, []string{"Apple CarPlay", "Adaptive cruise control"}, f.Features)

	require.NotNil(t, f.Dealer)
	assert.Equal(t, "Sunrise Toyota", f.Dealer.Name)
	assert.Equal(t, "+1-555-123-4567", f.Dealer.Phone)
	assert.Equal(t, "sales@sunrise.example", f.Dealer.Email)
}

func TestExtract_TextScan(t *testing.T) {
	page := `<html><body><article>
<p>The 2025 Honda Civic is priced from $24,950 and its 2.0-liter engine makes 150 hp and 133 lb-ft.
It runs 0-60 mph in 8.2 seconds and returns 36 mpg combined, rated 33 mpg city / 42 mpg highway.</p>
</article></body></html>`

	f := New().Extract(page, "https://news.example.com/civic", Hint{Model: "Civic"})
	require.NotNil(t, f.StartingMSRP)
	assert.InDelta(t, 24950, *f.StartingMSRP, 0.01)
	assert.Equal(t, 150, *f.Performance.Horsepower)
	assert.Equal(t, 133, *f.Performance.Torque)
	assert.InDelta(t, 8.2, *f.Performance.Acceleration0To60, 0.01)
	assert.InDelta(t, 36, *f.FuelEconomy.Combined, 0.01)
	assert.InDelta(t, 33, *f.FuelEconomy.City, 0.01)
	assert.InDelta(t, 42, *f.FuelEconomy.Highway, 0.01)
	assert.Nil(t, f.Features)
	assert.Nil(t, f.Dealer)
}

func TestExtract_PriceRange(t *testing.T) {
	page := `<html><body><p>Price range: $41,000 - $58,500</p></body></html>`
	f := New().Extract(page, "https://a.example/x", Hint{})
	require.NotNil(t, f.StartingMSRP)
	assert.InDelta(t, 41000, *f.StartingMSRP, 0.01)
	require.NotNil(t, f.MaxPrice)
	assert.InDelta(t, 58500, *f.MaxPrice, 0.01)
}

func TestExtract_Selectors(t *testing.T) {
	page := `<html><body><span class="msrp">From $31,200*</span><div class="pwr">301 horsepower</div></body></html>`
	f := New().Extract(page, "https://a.example/x", Hint{Selectors: map[string]string{
		"price":      ".msrp",
		"horsepower": ".pwr",
		"torque":     "[[bad",
	}})
	require.NotNil(t, f.StartingMSRP)
	assert.InDelta(t, 31200, *f.StartingMSRP, 0.01)
	assert.Equal(t, 301, *f.Performance.Horsepower)
}

func TestExtract_EmptyPage(t *testing.T) {
	f := New().Extract("<html><body><p>Nothing here.</p></body></html>", "https://a.example/x", Hint{})
	assert.True(t, f.Empty())
}

func TestSelectText(t *testing.T) {
	texts, err := SelectText(`<ul><li> a <b>b</b></li><li>c</li><li><script>x</script></li></ul>`, "li")
	require.NoError(t, err)
	assert.Equal(t, []string{"a b", "c"}, texts)

	_, err = SelectText("<p></p>", "[[")
	assert.Error(t, err)
}

func TestApplyLabel(t *testing.T) {
	f := models.Fragment{}
	assert.False(t, applyLabel(&f, "Cargo ship", "12"))
	assert.True(t, applyLabel(&f, "City MPG", "30"))
	assert.True(t, applyLabel(&f, "Hwy MPG", "38"))
	assert.True(t, applyLabel(&f, "Model Year", "2023"))
	assert.InDelta(t, 30, *f.FuelEconomy.City, 0.01)
	assert.InDelta(t, 38, *f.FuelEconomy.Highway, 0.01)
	assert.Equal(t, 2023, *f.Year)

	// First value found on a page sticks.
	applyLabel(&f, "Horsepower", "200")
	applyLabel(&f, "Horsepower", "300")
	assert.Equal(t, 200, *f.Performance.Horsepower)
}

func TestExtractModels(t *testing.T) {
	page := `<html><body>
<h2>Toyota Models 2024</h2>
<a href="/1">2024 Toyota Camry Review</a>
<a href="/2">Toyota RAV4 Hybrid price</a>
<a href="/3">Toyota Camry vs Honda Accord</a>
<a href="/4">Toyota dealer near you</a>
<li>New Toyota Tacoma, Toyota 4Runner and Toyota 2025 lineup</li>
</body></html>`

	got := ExtractModels(page, "Toyota", 10)
	assert.Equal(t, []string{"Camry", "RAV4", "Tacoma", "4Runner"}, got)
	assert.Equal(t, []string{"Camry", "RAV4"}, ExtractModels(page, "Toyota", 2))
	assert.Nil(t, ExtractModels(page, "Toyota", 0))

	assert.Equal(t, []string{"C-Class"}, ExtractModels(`<a>Mercedes-Benz C-Class sedan</a>`, "Mercedes-Benz", 5))
}
