package catalog

// defaultCategories is the built-in catalog used when no catalog file is
// configured. Category ids follow the MLB (Brazil) site taxonomy; terms are
// the free-text queries that best surface each category's inventory, biased
// toward products that carry transport or handling restrictions.
var defaultCategories = []Category{
	{
		ID:   "MLB5672",
		Name: "Acessórios para Veículos",
		Terms: []string{
			"oleo motor",
			"aditivo radiador",
			"fluido de freio",
			"bateria automotiva",
			"combustivel aditivado",
			"graxa lubrificante",
			"limpa bico injetor",
			"descarbonizante",
			"silicone automotivo",
			"tinta spray automotiva",
			"cera automotiva",
			"removedor de piche",
			"desengraxante motor",
			"arla 32",
			"fluido direcao hidraulica",
		},
	},
	{
		ID:   "MLB263532",
		Name: "Ferramentas",
		Terms: []string{
			"macarico",
			"botijao gas macarico",
			"solda estanho",
			"fluxo de solda",
			"cola epoxi",
			"adesivo instantaneo",
			"espuma expansiva",
			"thinner",
			"aguarras",
			"removedor de tinta",
			"verniz madeira",
			"seladora madeira",
			"gas isqueiro",
			"oleo para maquina",
			"desengripante spray",
		},
	},
	{
		ID:   "MLB1574",
		Name: "Casa, Móveis e Decoração",
		Terms: []string{
			"alcool em gel",
			"querosene",
			"fluido para lampiao",
			"vela citronela",
			"repelente ambiente",
			"inseticida",
			"veneno para rato",
			"soda caustica",
			"desentupidor quimico",
			"agua sanitaria",
			"cloro piscina",
			"algicida piscina",
			"clarificante piscina",
			"acido muriatico",
			"impermeabilizante",
		},
	},
	{
		ID:   "MLB1246",
		Name: "Beleza e Cuidado Pessoal",
		Terms: []string{
			"perfume importado",
			"desodorante aerosol",
			"esmalte unha",
			"removedor esmalte",
			"acetona",
			"tintura cabelo",
			"descolorante cabelo",
			"alisante capilar",
			"spray fixador cabelo",
			"agua oxigenada",
			"alcool 70",
			"laca spray",
		},
	},
	{
		ID:   "MLB1000",
		Name: "Eletrônicos, Áudio e Vídeo",
		Terms: []string{
			"bateria litio",
			"pilha recarregavel",
			"power bank",
			"bateria notebook",
			"bateria celular",
			"carregador bateria",
			"bateria drone",
			"ar comprimido limpeza",
			"pasta termica",
			"limpa contato eletrico",
		},
	},
	{
		ID:   "MLB1276",
		Name: "Esportes e Fitness",
		Terms: []string{
			"cilindro co2",
			"cartucho co2 bike",
			"gas para airsoft",
			"refil green gas",
			"cantil combustivel",
			"fogareiro gas",
			"cartucho gas camping",
			"alcool para fogareiro",
			"spray gelado muscular",
			"oxido de magnesio escalada",
		},
	},
	{
		ID:   "MLB1403",
		Name: "Alimentos e Bebidas",
		Terms: []string{
			"bebida alcoolica",
			"whisky importado",
			"vodka garrafa",
			"licor fino",
			"extrato de baunilha",
			"essencia concentrada",
			"carvao para churrasco",
			"acendedor de churrasqueira",
			"gelo seco",
		},
	},
	{
		ID:   "MLB1071",
		Name: "Animais",
		Terms: []string{
			"antipulgas",
			"carrapaticida",
			"vermifugo caes",
			"sarnicida",
			"desinfetante canil",
			"eliminador de odores pet",
			"medicamento aquario",
			"condicionador agua aquario",
		},
	},
	{
		ID:   "MLB1499",
		Name: "Indústria e Comércio",
		Terms: []string{
			"acido sulfurico",
			"soda caustica escamas",
			"hipoclorito de sodio",
			"peroxido de hidrogenio",
			"resina poliester",
			"catalisador resina",
			"solvente industrial",
			"gas refrigerante",
			"oxigenio cilindro",
			"acetileno",
			"argonio cilindro",
			"tinta epoxi industrial",
			"desincrustante",
			"amonia",
		},
	},
	{
		ID:   "MLB1953",
		Name: "Mais Categorias",
		Terms: []string{
			"isqueiro maçarico",
			"fluido de isqueiro",
			"pedra de isqueiro",
			"carvao ativado",
			"enxofre em po",
			"salitre",
			"parafina",
		},
	},
}

// defaultExtraTerms are uncategorized queries kept under the "extra"
// pseudo-category
var defaultExtraTerms = []string{
	"produto quimico",
	"material inflamavel",
	"aerosol",
	"corrosivo",
	"oxidante",
	"galao gasolina",
	"spray lubrificante",
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := New(defaultCategories, defaultExtraTerms)
	if err != nil {
		// The built-in tables are validated by tests; this cannot happen
		// with the shipped data.
		panic(err)
	}
	return c
}
