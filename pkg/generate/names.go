package generate

// Name and country lists. No entry may contain a comma.

var firstNames = []string{
	"Oliver", "Amelia", "George", "Isla", "Harry", "Ava", "Noah", "Mia",
	"Jack", "Ivy", "Leo", "Lily", "Arthur", "Isabella", "Muhammad", "Rosie",
	"Oscar", "Sophia", "Charlie", "Grace", "Jacob", "Freya", "Thomas", "Evie",
	"Henry", "Florence", "William", "Poppy", "Alfie", "Ella", "Joshua", "Emily",
	"Freddie", "Willow", "Archie", "Elsie", "Ethan", "Sienna", "Isaac", "Daisy",
}

var lastNames = []string{
	"Smith", "Jones", "Taylor", "Brown", "Williams", "Wilson", "Johnson", "Davies",
	"Patel", "Robinson", "Wright", "Thompson", "Evans", "Walker", "White", "Roberts",
	"Green", "Hall", "Thomas", "Clarke", "Jackson", "Wood", "Harris", "Edwards",
	"Turner", "Martin", "Cooper", "Hill", "Ward", "Hughes", "Moore", "Clark",
	"King", "Harrison", "Lewis", "Baker", "Lee", "Allen", "Morris", "Khan",
}

var countries = []string{
	"Argentina", "Australia", "Austria", "Belgium", "Brazil", "Canada", "Chile",
	"China", "Colombia", "Denmark", "Egypt", "Finland", "France", "Germany",
	"Ghana", "Greece", "India", "Indonesia", "Ireland", "Italy", "Japan",
	"Kenya", "Mexico", "Morocco", "Netherlands", "New Zealand", "Nigeria",
	"Norway", "Pakistan", "Peru", "Poland", "Portugal", "South Africa",
	"South Korea", "Spain", "Sweden", "Switzerland", "Thailand", "Turkey",
	"United Kingdom", "United States", "Vietnam",
}
