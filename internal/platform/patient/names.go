package patient

var lastNames = []string{
	"Anderson", "Baker", "Carter", "Dawson", "Ellis", "Fletcher", "Garcia", "Hughes",
	"Irving", "Jensen", "Keller", "Lawson", "Morales", "Nolan", "Ortega", "Parker",
	"Quinn", "Ramsey", "Sawyer", "Turner", "Underwood", "Vaughn", "Walsh", "Young",
}

var girlNames = []string{
	"Abigail", "Bella", "Chloe", "Delia", "Emma", "Fiona", "Grace", "Hazel",
	"Iris", "Julia", "Kara", "Lena", "Maya", "Nora", "Olive", "Paige",
	"Ruby", "Sadie", "Tessa", "Violet",
}

var boyNames = []string{
	"Aaron", "Blake", "Caleb", "Dylan", "Ethan", "Felix", "Gavin", "Henry",
	"Isaac", "Jonah", "Kyle", "Logan", "Mason", "Nathan", "Owen", "Peter",
	"Reid", "Simon", "Tyler", "Wyatt",
}

var streets = []string{
	"Maple", "Oak", "Cedar", "Elm", "Willow", "Birch", "Lake", "Hill",
	"Washington", "Lincoln", "Jefferson", "Madison", "Park", "River",
}

var streetTypes = []string{"St", "Ave", "Rd", "Ln", "Dr", "Ct"}

type place struct {
	city      string
	state     string
	zipPrefix string
	area      string
}

var places = []place{
	{"Lansing", "MI", "489", "517"},
	{"Grand Rapids", "MI", "495", "616"},
	{"Madison", "WI", "537", "608"},
	{"Minneapolis", "MN", "554", "612"},
	{"Des Moines", "IA", "503", "515"},
	{"Columbus", "OH", "432", "614"},
	{"Springfield", "IL", "627", "217"},
	{"Indianapolis", "IN", "462", "317"},
}
