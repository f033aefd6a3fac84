package feed

// Disaster is one entry from the ReliefWeb disasters listing. The upstream
// payload is untrusted: every field except ID may be missing or empty.
type Disaster struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// Fields holds the nested field block of a disaster entry.
type Fields struct {
	Name        string    `json:"name"`
	Date        DateBlock `json:"date"`
	Type        []string  `json:"type"`
	Country     []Country `json:"country"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
}

// DateBlock carries the upstream creation timestamp.
type DateBlock struct {
	Created string `json:"created"`
}

// Country is a country reference within a disaster entry.
type Country struct {
	Name string `json:"name"`
}

type listResponse struct {
	Data []rawDisaster `json:"data"`
}

// rawDisaster tolerates the two type shapes ReliefWeb serves: the slim list
// profile uses bare strings for type, the full profile uses objects.
type rawDisaster struct {
	ID     string    `json:"id"`
	Fields rawFields `json:"fields"`
}

type rawFields struct {
	Name        string    `json:"name"`
	Date        DateBlock `json:"date"`
	Type        typeList  `json:"type"`
	Country     []Country `json:"country"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
}

func (r rawDisaster) toDisaster() Disaster {
	return Disaster{
		ID: r.ID,
		Fields: Fields{
			Name:        r.Fields.Name,
			Date:        r.Fields.Date,
			Type:        r.Fields.Type,
			Country:     r.Fields.Country,
			Status:      r.Fields.Status,
			Description: r.Fields.Description,
			URL:         r.Fields.URL,
		},
	}
}
