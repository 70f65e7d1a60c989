package gtts

// Language is one language the file endpoint offers
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Accent is one regional accent, selected through the Google domain
type Accent struct {
	TLD  string `json:"tld"`
	Name string `json:"name"`
	Lang string `json:"lang"`
}

// Speed is one speech speed option
type Speed struct {
	Value bool   `json:"value"`
	Name  string `json:"name"`
}

// Catalog lists the options of the file-based engine
type Catalog struct {
	Languages []Language `json:"languages"`
	Accents   []Accent   `json:"accents"`
	Speeds    []Speed    `json:"speeds"`
}

// StaticCatalog returns the fixed option catalog. Each call returns a fresh copy.
func StaticCatalog() Catalog {
	return Catalog{
		Languages: []Language{
			{Code: "en", Name: "English"},
			{Code: "es", Name: "Spanish"},
			{Code: "fr", Name: "French"},
			{Code: "de", Name: "German"},
			{Code: "it", Name: "Italian"},
			{Code: "pt", Name: "Portuguese"},
			{Code: "ja", Name: "Japanese"},
			{Code: "ko", Name: "Korean"},
			{Code: "zh", Name: "Chinese"},
			{Code: "hi", Name: "Hindi"},
			{Code: "ar", Name: "Arabic"},
			{Code: "ru", Name: "Russian"},
		},
		Accents: []Accent{
			{TLD: "com", Name: "US English", Lang: "en"},
			{TLD: "co.uk", Name: "British English", Lang: "en"},
			{TLD: "ca", Name: "Canadian English", Lang: "en"},
			{TLD: "co.in", Name: "Indian English", Lang: "en"},
			{TLD: "com.au", Name: "Australian English", Lang: "en"},
			{TLD: "co.za", Name: "South African English", Lang: "en"},
		},
		Speeds: []Speed{
			{Value: false, Name: "Normal Speed"},
			{Value: true, Name: "Slow Speed"},
		},
	}
}
