// Package portfolio models the portfolio content document, its packaged
// default, and the stores it lives in.
package portfolio

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

type SocialLink struct {
	Platform string `json:"platform" yaml:"platform"`
	URL      string `json:"url" yaml:"url"`
	Label    string `json:"label" yaml:"label"`
}

type Profile struct {
	Name     string       `json:"name" yaml:"name"`
	Roles    []string     `json:"roles" yaml:"roles"`
	Location string       `json:"location" yaml:"location"`
	Tagline  string       `json:"tagline" yaml:"tagline"`
	Email    string       `json:"email" yaml:"email"`
	Socials  []SocialLink `json:"socials" yaml:"socials"`
}

type About struct {
	University     string   `json:"university" yaml:"university"`
	Degree         string   `json:"degree" yaml:"degree"`
	GraduationYear string   `json:"graduationYear" yaml:"graduationYear"`
	GPA            string   `json:"gpa" yaml:"gpa"`
	Bio            string   `json:"bio" yaml:"bio"`
	CurrentRoles   []string `json:"currentRoles" yaml:"currentRoles"`
	Interests      []string `json:"interests" yaml:"interests"`
}

// Experience is a job or program. A nil EndDate means ongoing.
type Experience struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Company     string   `json:"company" yaml:"company"`
	Location    string   `json:"location" yaml:"location"`
	StartDate   string   `json:"startDate" yaml:"startDate"`
	EndDate     *string  `json:"endDate" yaml:"endDate"`
	Description string   `json:"description" yaml:"description"`
	Skills      []string `json:"skills" yaml:"skills"`
}

type Project struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Description     string   `json:"description" yaml:"description"`
	LongDescription *string  `json:"longDescription" yaml:"longDescription"`
	Technologies    []string `json:"technologies" yaml:"technologies"`
	GithubURL       *string  `json:"githubUrl" yaml:"githubUrl"`
	LiveURL         *string  `json:"liveUrl" yaml:"liveUrl"`
	ImageURL        *string  `json:"imageUrl" yaml:"imageUrl"`
	Featured        bool     `json:"featured" yaml:"featured"`
}

type Skill struct {
	ID       string   `json:"id" yaml:"id"`
	Category string   `json:"category" yaml:"category"`
	Items    []string `json:"items" yaml:"items"`
}

type Achievement struct {
	ID          string  `json:"id" yaml:"id"`
	Title       string  `json:"title" yaml:"title"`
	Description string  `json:"description" yaml:"description"`
	Date        string  `json:"date" yaml:"date"`
	Icon        *string `json:"icon" yaml:"icon"`
}

type Education struct {
	ID          string  `json:"id" yaml:"id"`
	Institution string  `json:"institution" yaml:"institution"`
	Degree      string  `json:"degree" yaml:"degree"`
	Field       string  `json:"field" yaml:"field"`
	GPA         *string `json:"gpa" yaml:"gpa"`
	StartDate   string  `json:"startDate" yaml:"startDate"`
	EndDate     *string `json:"endDate" yaml:"endDate"`
}

// Document is the whole portfolio. Fields carry no omitempty so every key
// of the schema is present in the JSON form; path edits rely on that.
type Document struct {
	Profile      Profile       `json:"profile" yaml:"profile"`
	About        About         `json:"about" yaml:"about"`
	Experiences  []Experience  `json:"experiences" yaml:"experiences"`
	Projects     []Project     `json:"projects" yaml:"projects"`
	Skills       []Skill       `json:"skills" yaml:"skills"`
	Achievements []Achievement `json:"achievements" yaml:"achievements"`
	Education    []Education   `json:"education" yaml:"education"`
	LastUpdated  string        `json:"lastUpdated" yaml:"lastUpdated"`
}

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	defaultOnce sync.Once
	defaultDoc  Document
	defaultErr  error
)

// Default returns a fresh copy of the packaged content.
func Default() Document {
	defaultOnce.Do(func() {
		var doc Document
		if err := yaml.Unmarshal(defaultsYAML, &doc); err != nil {
			defaultErr = fmt.Errorf("decode packaged portfolio: %w", err)
			return
		}
		defaultDoc = doc.normalized()
	})
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultDoc.Clone()
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	data, err := json.Marshal(d)
	if err != nil {
		panic(fmt.Sprintf("portfolio: marshal document: %v", err))
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("portfolio: unmarshal document: %v", err))
	}
	return out.normalized()
}

// normalized replaces nil slices with empty ones so arrays stay arrays in
// the JSON form.
func (d Document) normalized() Document {
	if d.Profile.Roles == nil {
		d.Profile.Roles = []string{}
	}
	if d.Profile.Socials == nil {
		d.Profile.Socials = []SocialLink{}
	}
	if d.About.CurrentRoles == nil {
		d.About.CurrentRoles = []string{}
	}
	if d.About.Interests == nil {
		d.About.Interests = []string{}
	}
	if d.Experiences == nil {
		d.Experiences = []Experience{}
	}
	if d.Projects == nil {
		d.Projects = []Project{}
	}
	if d.Skills == nil {
		d.Skills = []Skill{}
	}
	if d.Achievements == nil {
		d.Achievements = []Achievement{}
	}
	if d.Education == nil {
		d.Education = []Education{}
	}
	for i := range d.Experiences {
		if d.Experiences[i].Skills == nil {
			d.Experiences[i].Skills = []string{}
		}
	}
	for i := range d.Projects {
		if d.Projects[i].Technologies == nil {
			d.Projects[i].Technologies = []string{}
		}
	}
	for i := range d.Skills {
		if d.Skills[i].Items == nil {
			d.Skills[i].Items = []string{}
		}
	}
	return d
}
