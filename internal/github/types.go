package github

// types.go has the Go types that query results are decoded into

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrRepositoryNotFound is returned when the viewer has no repository of the requested name
var ErrRepositoryNotFound = errors.New("repository not found")

type (
	// Repository is the summary of a repository (see RepositoryFragment)
	Repository struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	// RepositoryDetail is everything we show about one repository
	RepositoryDetail struct {
		Repository
		URL              string `json:"url"`
		StargazerCount   int    `json:"stargazerCount"`
		ViewerHasStarred bool   `json:"viewerHasStarred"`
		PullRequests     Count  `json:"pullRequests"`
		Issues           Count  `json:"issues"`
	}

	// Count is a connection of which we only want the total
	Count struct {
		TotalCount int `json:"totalCount"`
	}

	Commit struct {
		AbbreviatedOid string `json:"abbreviatedOid"`
		Message        string `json:"message"`
		Author         Author `json:"author"`
	}

	Author struct {
		Name  string   `json:"name"`
		Email string   `json:"email"`
		Date  DateTime `json:"date"`
	}

	// StarEvent is sent (via subscription) when a repository is starred
	StarEvent struct {
		StarredAt  DateTime `json:"starredAt"`
		Repository struct {
			Repository
			StargazerCount int `json:"stargazerCount"`
		} `json:"repository"`
	}

	// Starred is the result of AddStarMutation
	Starred struct {
		ID               string `json:"id"`
		StargazerCount   int    `json:"stargazerCount"`
		ViewerHasStarred bool   `json:"viewerHasStarred"`
	}
)

func decode(data json.RawMessage, v interface{}, what string) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("no data for %s", what)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w decoding %s", err, what)
	}
	return nil
}

// DecodeRepositories gets the repositories from the data of RepositoriesQuery
func DecodeRepositories(data json.RawMessage) ([]Repository, error) {
	var r struct {
		Viewer struct {
			Repositories struct {
				Nodes []Repository `json:"nodes"`
			} `json:"repositories"`
		} `json:"viewer"`
	}
	if err := decode(data, &r, "repositories"); err != nil {
		return nil, err
	}
	return r.Viewer.Repositories.Nodes, nil
}

// DecodeRepositoryDetail gets the repository from the data of RepositoryDetailQuery
func DecodeRepositoryDetail(data json.RawMessage) (*RepositoryDetail, error) {
	var r struct {
		Viewer struct {
			Repository *RepositoryDetail `json:"repository"`
		} `json:"viewer"`
	}
	if err := decode(data, &r, "repository detail"); err != nil {
		return nil, err
	}
	if r.Viewer.Repository == nil {
		return nil, ErrRepositoryNotFound
	}
	return r.Viewer.Repository, nil
}

// DecodeCommits gets the commits from the data of RepositoryCommitsQuery.  If the repository has
// no master branch there are no commits.
func DecodeCommits(data json.RawMessage) ([]Commit, error) {
	var r struct {
		Viewer struct {
			Repository *struct {
				Ref *struct {
					Target struct {
						History struct {
							Edges []struct {
								Node Commit `json:"node"`
							} `json:"edges"`
						} `json:"history"`
					} `json:"target"`
				} `json:"ref"`
			} `json:"repository"`
		} `json:"viewer"`
	}
	if err := decode(data, &r, "commits"); err != nil {
		return nil, err
	}
	if r.Viewer.Repository == nil {
		return nil, ErrRepositoryNotFound
	}
	commits := []Commit{}
	if r.Viewer.Repository.Ref == nil {
		return commits, nil
	}
	for _, edge := range r.Viewer.Repository.Ref.Target.History.Edges {
		commits = append(commits, edge.Node)
	}
	return commits, nil
}

// DecodeStarred gets the result of AddStarMutation
func DecodeStarred(data json.RawMessage) (*Starred, error) {
	var r struct {
		AddStar struct {
			Starrable *Starred `json:"starrable"`
		} `json:"addStar"`
	}
	if err := decode(data, &r, "addStar"); err != nil {
		return nil, err
	}
	if r.AddStar.Starrable == nil {
		return nil, ErrRepositoryNotFound
	}
	return r.AddStar.Starrable, nil
}

// DecodeStarEvent gets the event from the data of a StarEventsSubscription message
func DecodeStarEvent(data json.RawMessage) (*StarEvent, error) {
	var r struct {
		StarEvents StarEvent `json:"starEvents"`
	}
	if err := decode(data, &r, "star event"); err != nil {
		return nil, err
	}
	return &r.StarEvents, nil
}
