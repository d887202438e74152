package external

// Open Food Facts wire types

type offProduct struct {
	Code            string `json:"code"`
	ProductName     string `json:"product_name"`
	Brands          string `json:"brands"`
	ImageURL        string `json:"image_front_small_url"`
	NutriscoreGrade string `json:"nutriscore_grade"`
}

type offSearchResponse struct {
	Count    int          `json:"count"`
	Page     int          `json:"page"`
	Products []offProduct `json:"products"`
}

// offProductResponse is returned by the product-by-barcode endpoint.
// Status is 1 when the barcode is known, 0 otherwise.
type offProductResponse struct {
	Code    string     `json:"code"`
	Status  int        `json:"status"`
	Product offProduct `json:"product"`
}

// USDA FoodData Central wire types

type usdaFood struct {
	FdcID       int    `json:"fdcId"`
	Description string `json:"description"`
	DataType    string `json:"dataType"`
	BrandOwner  string `json:"brandOwner,omitempty"`
	BrandName   string `json:"brandName,omitempty"`
	GtinUpc     string `json:"gtinUpc,omitempty"`
}

type usdaSearchResponse struct {
	TotalHits   int        `json:"totalHits"`
	CurrentPage int        `json:"currentPage"`
	TotalPages  int        `json:"totalPages"`
	Foods       []usdaFood `json:"foods"`
}
