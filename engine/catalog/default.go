package catalog

// Default returns the built-in brand table. Latin spellings and cyrillic
// transliterations are exact tokens; the alias lists carry the nicknames and
// typos seen in real listings.
func Default() Catalog {
	return New([]Entry{
		{Key: "bmw", Exact: []string{"bmw", "бмв"}, Aliases: []string{"бэха", "бумер", "бэмвэ"}},
		{Key: "mercedes", Exact: []string{"mercedes", "mercedes-benz", "мерседес"}, Aliases: []string{"мерс", "merc", "benz"}},
		{Key: "audi", Exact: []string{"audi", "ауди"}, Aliases: []string{"авдотья"}},
		{Key: "toyota", Exact: []string{"toyota", "тойота"}, Aliases: []string{"тойка", "toyta"}},
		{Key: "lexus", Exact: []string{"lexus", "лексус"}, Aliases: []string{"лехус"}},
		{Key: "volkswagen", Exact: []string{"volkswagen", "фольксваген"}, Aliases: []string{"vw", "фолькс"}},
		{Key: "porsche", Exact: []string{"porsche", "порше"}, Aliases: []string{"порш"}},
		{Key: "skoda", Exact: []string{"skoda", "шкода"}, Aliases: []string{"škoda"}},
		{Key: "volvo", Exact: []string{"volvo", "вольво"}, Aliases: nil},
		{Key: "ford", Exact: []string{"ford", "форд"}, Aliases: nil},
		{Key: "nissan", Exact: []string{"nissan", "ниссан"}, Aliases: []string{"нисан"}},
		{Key: "mazda", Exact: []string{"mazda", "мазда"}, Aliases: nil},
		{Key: "honda", Exact: []string{"honda", "хонда"}, Aliases: nil},
		{Key: "hyundai", Exact: []string{"hyundai", "хендай"}, Aliases: []string{"хундай", "хёндэ"}},
		{Key: "kia", Exact: []string{"kia", "киа"}, Aliases: nil},
		{Key: "mitsubishi", Exact: []string{"mitsubishi", "мицубиси"}, Aliases: []string{"митсубиши"}},
		{Key: "subaru", Exact: []string{"subaru", "субару"}, Aliases: nil},
		{Key: "tesla", Exact: []string{"tesla", "тесла"}, Aliases: nil},
		{Key: "land rover", Exact: []string{"land rover", "ленд ровер"}, Aliases: []string{"рендж", "range rover"}},
		{Key: "jaguar", Exact: []string{"jaguar", "ягуар"}, Aliases: nil},
	})
}
