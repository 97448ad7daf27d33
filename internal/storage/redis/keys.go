package redis

import "fmt"

// Key prefix for all server data
const keyPrefix = "thefall"

// accountKey returns the key holding an account's JSON record
func accountKey(username string) string {
	return fmt.Sprintf("%s:account:%s", keyPrefix, username)
}

// friendsKey returns the SET of an account's friends
func friendsKey(username string) string {
	return fmt.Sprintf("%s:friends:%s", keyPrefix, username)
}

// statsKey returns the HASH of an account's lifetime stats
func statsKey(username string) string {
	return fmt.Sprintf("%s:stats:%s", keyPrefix, username)
}

// outboundKey returns the SET of users a user has sent requests to
func outboundKey(username string) string {
	return fmt.Sprintf("%s:req:out:%s", keyPrefix, username)
}

// inboundKey returns the SET of users who have sent requests to a user
func inboundKey(username string) string {
	return fmt.Sprintf("%s:req:in:%s", keyPrefix, username)
}

// Stats hash fields
const (
	fieldTotalMinutes = "total_minutes"
	fieldGamesPlayed  = "games_played"
	fieldGamesWon     = "games_won"
	fieldTotalKills   = "total_kills"
	fieldTotalDeaths  = "total_deaths"
)
