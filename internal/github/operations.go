package github

// operations.go has the GraphQL documents (and their variables) sent to the GitHub API

const repositoryFragment = `
fragment RepositoryFragment on Repository {
  __typename
  id
  name
  description
}`

const repositoryDetailFragment = `
fragment RepositoryDetail on Repository {
  __typename
  id
  name
  description
  url
  stargazerCount
  viewerHasStarred
  pullRequests(states: $pullRequestStates) {
    totalCount
  }
  issues(states: [OPEN]) {
    totalCount
  }
}`

// DefaultRepositoriesCount is the number of repositories fetched if RepositoriesQuery.Count is zero
const DefaultRepositoriesCount = 50

// PossibleTypes lists the concrete types of the GitHub interfaces used in fragments of our operations
var PossibleTypes = map[string][]string{
	"GitObject": {"Commit", "Tree", "Blob", "Tag"},
	"Starrable": {"Repository", "Gist", "Topic"},
}

type (
	// RepositoriesQuery gets the repositories owned by the user
	RepositoriesQuery struct {
		Count     int    // defaults to DefaultRepositoriesCount
		OrderBy   string // RepositoryOrderField - defaults to UPDATED_AT
		Direction string // OrderDirection - defaults to DESC
	}

	// RepositoryDetailQuery gets details of one of the user's repositories
	RepositoryDetailQuery struct {
		Name              string
		PullRequestStates []string // defaults to OPEN
	}

	// RepositoryCommitsQuery gets the latest commits to the master branch of a repository
	RepositoryCommitsQuery struct {
		Name string
	}

	// AddStarMutation stars a repository (given its node ID)
	AddStarMutation struct {
		RepositoryID string
	}

	// StarEventsSubscription receives an event whenever the repository is starred
	StarEventsSubscription struct {
		Name string
	}
)

func (RepositoriesQuery) Name() string { return "GithubRepositories" }

func (RepositoriesQuery) Document() string {
	return `query GithubRepositories($repositoriesCount: Int!, $orderBy: RepositoryOrderField!, $orderDirection: OrderDirection!) {
  viewer {
    __typename
    repositories(first: $repositoriesCount, orderBy: {field: $orderBy, direction: $orderDirection}, ownerAffiliations: [OWNER]) {
      __typename
      nodes {
        ...RepositoryFragment
      }
    }
  }
}` + repositoryFragment
}

func (q RepositoriesQuery) Variables() map[string]interface{} {
	count, orderBy, direction := q.Count, q.OrderBy, q.Direction
	if count <= 0 {
		count = DefaultRepositoriesCount
	}
	if orderBy == "" {
		orderBy = "UPDATED_AT"
	}
	if direction == "" {
		direction = "DESC"
	}
	return map[string]interface{}{
		"repositoriesCount": count,
		"orderBy":           orderBy,
		"orderDirection":    direction,
	}
}

func (RepositoryDetailQuery) Name() string { return "GithubRepositoryDetail" }

func (RepositoryDetailQuery) Document() string {
	return `query GithubRepositoryDetail($name: String!, $pullRequestStates: [PullRequestState!]!) {
  viewer {
    __typename
    repository(name: $name) {
      ...RepositoryDetail
    }
  }
}` + repositoryDetailFragment
}

func (q RepositoryDetailQuery) Variables() map[string]interface{} {
	states := make([]interface{}, 0, len(q.PullRequestStates))
	for _, s := range q.PullRequestStates {
		states = append(states, s)
	}
	if len(states) == 0 {
		states = append(states, "OPEN")
	}
	return map[string]interface{}{"name": q.Name, "pullRequestStates": states}
}

func (RepositoryCommitsQuery) Name() string { return "GithubRepositoryCommits" }

func (RepositoryCommitsQuery) Document() string {
	return `query GithubRepositoryCommits($name: String!) {
  viewer {
    __typename
    repository(name: $name) {
      __typename
      id
      ref(qualifiedName: "master") {
        __typename
        target {
          __typename
          ... on Commit {
            history(first: 50) {
              __typename
              edges {
                __typename
                node {
                  __typename
                  abbreviatedOid
                  message
                  author {
                    __typename
                    name
                    email
                    date
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`
}

func (q RepositoryCommitsQuery) Variables() map[string]interface{} {
	return map[string]interface{}{"name": q.Name}
}

func (AddStarMutation) Name() string { return "AddStar" }

func (AddStarMutation) Document() string {
	return `mutation AddStar($repositoryId: ID!) {
  addStar(input: {starrableId: $repositoryId}) {
    __typename
    starrable {
      __typename
      ... on Repository {
        id
        stargazerCount
        viewerHasStarred
      }
    }
  }
}`
}

func (m AddStarMutation) Variables() map[string]interface{} {
	return map[string]interface{}{"repositoryId": m.RepositoryID}
}

func (StarEventsSubscription) Name() string { return "StarEvents" }

func (StarEventsSubscription) Document() string {
	return `subscription StarEvents($name: String!) {
  starEvents(name: $name) {
    __typename
    starredAt
    repository {
      __typename
      id
      name
      stargazerCount
    }
  }
}`
}

func (s StarEventsSubscription) Variables() map[string]interface{} {
	return map[string]interface{}{"name": s.Name}
}
