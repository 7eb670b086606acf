package library

type Account = string

type Sha256 = string

// Profile is the parsed content of a kind 0 profile metadata event. Clients
// disagree on the display name key, so we accept both spellings.
type Profile struct {
	Account      Account `json:"-"`
	Name         string  `json:"name"`
	DisplayName  string  `json:"display_name"`
	DisplayName1 string  `json:"displayName"`
	About        string  `json:"about"`
	Picture      string  `json:"picture"`
	Banner       string  `json:"banner"`
	Website      string  `json:"website"`
	Nip05        string  `json:"nip05"`
	Lud06        string  `json:"lud06"`
	Lud16        string  `json:"lud16"`
}

func (p Profile) BestName() string {
	if len(p.DisplayName) > 0 {
		return p.DisplayName
	}
	if len(p.DisplayName1) > 0 {
		return p.DisplayName1
	}
	if len(p.Name) > 0 {
		return p.Name
	}
	return "(no name)"
}
