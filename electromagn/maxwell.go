package electromagn

// SolveMaxwellAmpere advances E by dt with curl B - J on the Yee layout
func (em *ElectroMagn) SolveMaxwellAmpere() {
	dt := em.Params.Timestep
	dtx := dt / em.Grid.CellLength[0]
	dty := dt / em.Grid.CellLength[1]
	dtz := dt / em.Grid.CellLength[2]
	p := em.Grid.PrimalDims()
	d := em.Grid.DualDims()

	// Ex^(d,p,p)
	for i := 0; i < d[0]; i++ {
		for j := 0; j < p[1]; j++ {
			for k := 0; k < p[2]; k++ {
				em.Ex.Add(i, j, k, -dt*em.Jx.At(i, j, k)+
					dty*(em.Bz.At(i, j+1, k)-em.Bz.At(i, j, k))-
					dtz*(em.By.At(i, j, k+1)-em.By.At(i, j, k)))
			}
		}
	}
	// Ey^(p,d,p)
	for i := 0; i < p[0]; i++ {
		for j := 0; j < d[1]; j++ {
			for k := 0; k < p[2]; k++ {
				em.Ey.Add(i, j, k, -dt*em.Jy.At(i, j, k)-
					dtx*(em.Bz.At(i+1, j, k)-em.Bz.At(i, j, k))+
					dtz*(em.Bx.At(i, j, k+1)-em.Bx.At(i, j, k)))
			}
		}
	}
	// Ez^(p,p,d)
	for i := 0; i < p[0]; i++ {
		for j := 0; j < p[1]; j++ {
			for k := 0; k < d[2]; k++ {
				em.Ez.Add(i, j, k, -dt*em.Jz.At(i, j, k)+
					dtx*(em.By.At(i+1, j, k)-em.By.At(i, j, k))-
					dty*(em.Bx.At(i, j+1, k)-em.Bx.At(i, j, k)))
			}
		}
	}
}

// SolveMaxwellFaraday advances B by dt with -curl E. The outermost dual
// layers are left to the boundary conditions and the exchange.
func (em *ElectroMagn) SolveMaxwellFaraday() {
	dt := em.Params.Timestep
	dtx := dt / em.Grid.CellLength[0]
	dty := dt / em.Grid.CellLength[1]
	dtz := dt / em.Grid.CellLength[2]
	p := em.Grid.PrimalDims()
	d := em.Grid.DualDims()

	// Bx^(p,d,d)
	for i := 0; i < p[0]; i++ {
		for j := 1; j < d[1]-1; j++ {
			for k := 1; k < d[2]-1; k++ {
				em.Bx.Add(i, j, k, -dty*(em.Ez.At(i, j, k)-em.Ez.At(i, j-1, k))+
					dtz*(em.Ey.At(i, j, k)-em.Ey.At(i, j, k-1)))
			}
		}
	}
	// By^(d,p,d)
	for i := 1; i < d[0]-1; i++ {
		for j := 0; j < p[1]; j++ {
			for k := 1; k < d[2]-1; k++ {
				em.By.Add(i, j, k, -dtz*(em.Ex.At(i, j, k)-em.Ex.At(i, j, k-1))+
					dtx*(em.Ez.At(i, j, k)-em.Ez.At(i-1, j, k)))
			}
		}
	}
	// Bz^(d,d,p)
	for i := 1; i < d[0]-1; i++ {
		for j := 1; j < d[1]-1; j++ {
			for k := 0; k < p[2]; k++ {
				em.Bz.Add(i, j, k, -dtx*(em.Ey.At(i, j, k)-em.Ey.At(i-1, j, k))+
					dty*(em.Ex.At(i, j, k)-em.Ex.At(i, j-1, k)))
			}
		}
	}
}
