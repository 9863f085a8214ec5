package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"omnitoken/clinic-service/internal/admin"
	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type File struct {
	Specialties []Specialty `yaml:"specialties"`
	Admin       *Account    `yaml:"admin"`
	Clinics     []Clinic    `yaml:"clinics"`
}

type Specialty struct {
	Name      string `yaml:"name"`
	ForClinic bool   `yaml:"for_clinic"`
	ForDoctor bool   `yaml:"for_doctor"`
}

type Account struct {
	Name      string `yaml:"name"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	Specialty string `yaml:"specialty"`
}

type Clinic struct {
	Name        string    `yaml:"name"`
	Phone       string    `yaml:"phone"`
	Email       string    `yaml:"email"`
	Address     string    `yaml:"address"`
	City        string    `yaml:"city"`
	State       string    `yaml:"state"`
	Pincode     string    `yaml:"pincode"`
	Specialties []string  `yaml:"specialties"`
	Admin       *Account  `yaml:"admin"`
	Doctors     []Account `yaml:"doctors"`
	Screens     []Account `yaml:"screens"`
	Cabins      []string  `yaml:"cabins"`
	Groups      []Group   `yaml:"groups"`
}

// Group members refer to doctors and screens by email and to cabins by name.
type Group struct {
	Name         string   `yaml:"name"`
	TokenInitial string   `yaml:"token_initial"`
	Doctors      []string `yaml:"doctors"`
	Screens      []string `yaml:"screens"`
	Cabins       []string `yaml:"cabins"`
}

// Load reads a seed file. ${VAR} references are expanded from the
// environment so passwords need not live in the file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse seed: %w", err)
	}
	return f, nil
}

// Apply creates whatever the seed names that is not in state yet.
// Specialties and clinics match by name, users by email.
func Apply(ctx context.Context, f File, svc *admin.Service, st *state.Store, logger zerolog.Logger) error {
	existing := st.Snapshot()

	for _, sp := range f.Specialties {
		if hasSpecialty(&existing, sp.Name) {
			continue
		}
		if _, err := svc.AddSpecialty(ctx, models.Specialty{Name: sp.Name, ForClinic: sp.ForClinic, ForDoctor: sp.ForDoctor}); err != nil {
			return fmt.Errorf("seed specialty %q: %w", sp.Name, err)
		}
	}

	if f.Admin != nil {
		if _, err := ensureUser(ctx, svc, &existing, *f.Admin, models.RoleCentralAdmin, ""); err != nil {
			return err
		}
	}

	for _, c := range f.Clinics {
		if hasClinic(&existing, c.Name) {
			continue
		}
		if err := applyClinic(ctx, svc, &existing, c); err != nil {
			return fmt.Errorf("seed clinic %q: %w", c.Name, err)
		}
		logger.Info().Str("clinic", c.Name).Msg("seeded clinic")
	}
	return nil
}

func applyClinic(ctx context.Context, svc *admin.Service, existing *models.Snapshot, c Clinic) error {
	clinic, err := svc.AddClinic(ctx, models.Clinic{
		Name:        c.Name,
		Phone:       c.Phone,
		Email:       c.Email,
		Address:     c.Address,
		City:        c.City,
		State:       c.State,
		Pincode:     c.Pincode,
		Specialties: c.Specialties,
	})
	if err != nil {
		return err
	}

	if c.Admin != nil {
		adminUser, err := ensureUser(ctx, svc, existing, *c.Admin, models.RoleClinicAdmin, clinic.ID)
		if err != nil {
			return err
		}
		clinic.AdminID = adminUser.ID
		if clinic, err = svc.UpdateClinic(ctx, clinic); err != nil {
			return err
		}
	}

	emails := make(map[string]string)
	for _, d := range c.Doctors {
		u, err := ensureUser(ctx, svc, existing, d, models.RoleDoctor, clinic.ID)
		if err != nil {
			return err
		}
		emails[strings.ToLower(d.Email)] = u.ID
	}
	for _, s := range c.Screens {
		u, err := ensureUser(ctx, svc, existing, s, models.RoleScreen, clinic.ID)
		if err != nil {
			return err
		}
		emails[strings.ToLower(s.Email)] = u.ID
	}

	cabins := make(map[string]string)
	for _, name := range c.Cabins {
		cabin, err := svc.AddCabin(ctx, models.Cabin{Name: name, ClinicID: clinic.ID})
		if err != nil {
			return err
		}
		cabins[name] = cabin.ID
	}

	for _, g := range c.Groups {
		group := models.ClinicGroup{Name: g.Name, ClinicID: clinic.ID, TokenInitial: g.TokenInitial}
		for _, email := range g.Doctors {
			id, ok := emails[strings.ToLower(email)]
			if !ok {
				return fmt.Errorf("group %q: unknown doctor %s", g.Name, email)
			}
			group.DoctorIDs = append(group.DoctorIDs, id)
		}
		for _, email := range g.Screens {
			id, ok := emails[strings.ToLower(email)]
			if !ok {
				return fmt.Errorf("group %q: unknown screen %s", g.Name, email)
			}
			group.ScreenIDs = append(group.ScreenIDs, id)
		}
		for _, name := range g.Cabins {
			id, ok := cabins[name]
			if !ok {
				return fmt.Errorf("group %q: unknown cabin %s", g.Name, name)
			}
			group.CabinIDs = append(group.CabinIDs, id)
		}
		if _, _, err := svc.AddGroup(ctx, group); err != nil {
			return err
		}
	}
	return nil
}

func ensureUser(ctx context.Context, svc *admin.Service, existing *models.Snapshot, acc Account, role, clinicID string) (models.User, error) {
	if i := state.UserByEmail(existing, acc.Email); i >= 0 {
		return existing.Users[i], nil
	}
	user, err := svc.AddUser(ctx, models.User{
		Name:      acc.Name,
		Email:     acc.Email,
		Role:      role,
		ClinicID:  clinicID,
		Specialty: acc.Specialty,
	}, acc.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("seed user %s: %w", acc.Email, err)
	}
	return user, nil
}

func hasSpecialty(snap *models.Snapshot, name string) bool {
	for _, sp := range snap.Specialties {
		if strings.EqualFold(sp.Name, name) {
			return true
		}
	}
	return false
}

func hasClinic(snap *models.Snapshot, name string) bool {
	for _, c := range snap.Clinics {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}
