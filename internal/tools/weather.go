package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// cityWeather is the fixed demo dataset served by the get_weather tool.
type cityWeather struct {
	TempC     int
	Condition string
	Humidity  int
	WindKPH   int
}

var weatherData = map[string]cityWeather{
	"seattle":       {8, "Rainy", 85, 15},
	"new york":      {12, "Partly Cloudy", 60, 20},
	"los angeles":   {22, "Sunny", 40, 10},
	"london":        {10, "Overcast", 75, 18},
	"paris":         {14, "Cloudy", 65, 12},
	"tokyo":         {16, "Clear", 55, 8},
	"sydney":        {25, "Sunny", 50, 14},
	"dubai":         {32, "Hot and Sunny", 30, 5},
	"mumbai":        {28, "Humid", 80, 10},
	"toronto":       {5, "Snowy", 70, 25},
	"san francisco": {15, "Foggy", 72, 16},
	"chicago":       {7, "Windy", 55, 35},
	"miami":         {27, "Sunny", 75, 12},
	"denver":        {10, "Clear", 35, 8},
	"boston":        {9, "Cloudy", 62, 18},
}

type weatherArgs struct {
	City string `json:"city"`
	Unit string `json:"unit"`
}

type weatherReport struct {
	City        string `json:"city"`
	Temperature int    `json:"temperature"`
	Unit        string `json:"unit"`
	Condition   string `json:"condition"`
	Humidity    string `json:"humidity"`
	Wind        string `json:"wind"`
	Description string `json:"description"`
}

func getWeather(argumentsJSON string) string {
	var args weatherArgs
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return errorResult(fmt.Sprintf("Failed to get weather: %v", err))
	}

	city := args.City
	if city == "" {
		city = "Unknown"
	}
	fahrenheit := args.Unit == "fahrenheit"

	report := reportFor(city, fahrenheit)
	out, err := json.Marshal(report)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to get weather: %v", err))
	}
	return string(out)
}

func reportFor(city string, fahrenheit bool) weatherReport {
	unitSymbol := "°C"
	if fahrenheit {
		unitSymbol = "°F"
	}

	data, ok := weatherData[strings.ToLower(city)]
	if !ok {
		temp := 20
		if fahrenheit {
			temp = 68
		}
		return weatherReport{
			City:        city,
			Temperature: temp,
			Unit:        unitSymbol,
			Condition:   "Moderate",
			Humidity:    "50%",
			Wind:        "10 km/h",
			Description: fmt.Sprintf("Weather data for %s: Temperature is %d%s with moderate conditions.", city, temp, unitSymbol),
		}
	}

	temp := data.TempC
	if fahrenheit {
		temp = celsiusToFahrenheit(temp)
	}
	return weatherReport{
		City:        city,
		Temperature: temp,
		Unit:        unitSymbol,
		Condition:   data.Condition,
		Humidity:    fmt.Sprintf("%d%%", data.Humidity),
		Wind:        fmt.Sprintf("%d km/h", data.WindKPH),
		Description: fmt.Sprintf("The weather in %s is %s with a temperature of %d%s. Humidity is at %d%% with winds of %d km/h.",
			city, strings.ToLower(data.Condition), temp, unitSymbol, data.Humidity, data.WindKPH),
	}
}

func celsiusToFahrenheit(celsius int) int {
	return (celsius*9)/5 + 32
}
